package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/log"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes of the artifact kinds.
var (
	prefixDocument = []byte("doc/")
	prefixImage    = []byte("img/")
	prefixBuild    = []byte("build/")
)

// ArtifactStore keeps lifted documents and built images in LevelDB, keyed
// by content digest, plus a build index from (document, options) to image.
// LevelDB handles its own synchronization.
type ArtifactStore struct {
	db *leveldb.DB
}

// NewArtifactStore opens or creates a database at path. An empty path uses
// in-memory storage.
func NewArtifactStore(path string) (*ArtifactStore, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	return &ArtifactStore{db: db}, nil
}

func NewMemoryArtifactStore() (*ArtifactStore, error) {
	return NewArtifactStore("")
}

// Get returns (nil, false, nil) when key is absent.
func (s *ArtifactStore) Get(key []byte) ([]byte, bool, error) {
	data, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("Get %x: %w", key, err)
	}
	return data, true, nil
}

func (s *ArtifactStore) Put(key []byte, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *ArtifactStore) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

// GetWithPrefix returns all pairs under prefix in key order.
func (s *ArtifactStore) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var results [][2][]byte
	for iter.Next() {
		results = append(results, [2][]byte{bytes.Clone(iter.Key()), bytes.Clone(iter.Value())})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("GetWithPrefix %x: %w", prefix, err)
	}
	return results, nil
}

func (s *ArtifactStore) Close() error {
	return s.db.Close()
}

func key(prefix []byte, h common.Hash) []byte {
	return append(bytes.Clone(prefix), h.Bytes()...)
}

func (s *ArtifactStore) PutDocument(doc *il.Document) (common.Hash, error) {
	h, err := doc.Digest()
	if err != nil {
		return common.Hash{}, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.Put(key(prefixDocument, h), data); err != nil {
		return common.Hash{}, err
	}
	log.Debug(log.StoreMonitoring, "stored document", "digest", h.String_short(), "instructions", len(doc.Instructions))
	return h, nil
}

func (s *ArtifactStore) GetDocument(h common.Hash) (*il.Document, bool, error) {
	data, ok, err := s.Get(key(prefixDocument, h))
	if err != nil || !ok {
		return nil, ok, err
	}
	doc, err := il.ReadDocument(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (s *ArtifactStore) PutImage(img *bytecode.Image) (common.Hash, error) {
	data, err := img.Marshal()
	if err != nil {
		return common.Hash{}, err
	}
	h := common.Blake2Hash(data)
	if err := s.Put(key(prefixImage, h), data); err != nil {
		return common.Hash{}, err
	}
	log.Debug(log.StoreMonitoring, "stored image", "digest", h.String_short(), "bytes", len(data))
	return h, nil
}

func (s *ArtifactStore) GetImage(h common.Hash) (*bytecode.Image, bool, error) {
	data, ok, err := s.Get(key(prefixImage, h))
	if err != nil || !ok {
		return nil, ok, err
	}
	img, err := bytecode.UnmarshalImage(data)
	if err != nil {
		return nil, false, err
	}
	return img, true, nil
}

func buildKey(doc common.Hash, opts bytecode.Options) ([]byte, error) {
	enc, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	return key(prefixBuild, common.Blake2HashParts(doc.Bytes(), enc)), nil
}

// PutBuild stores img and records it as the result of building doc with
// opts.
func (s *ArtifactStore) PutBuild(doc common.Hash, opts bytecode.Options, img *bytecode.Image) (common.Hash, error) {
	h, err := s.PutImage(img)
	if err != nil {
		return common.Hash{}, err
	}
	k, err := buildKey(doc, opts)
	if err != nil {
		return common.Hash{}, err
	}
	return h, s.Put(k, h.Bytes())
}

// LookupBuild returns the image previously built from doc with opts.
func (s *ArtifactStore) LookupBuild(doc common.Hash, opts bytecode.Options) (*bytecode.Image, bool, error) {
	k, err := buildKey(doc, opts)
	if err != nil {
		return nil, false, err
	}
	ref, ok, err := s.Get(k)
	if err != nil || !ok {
		return nil, ok, err
	}
	log.Trace(log.StoreMonitoring, "build cache hit", "doc", doc.String_short())
	return s.GetImage(common.BytesToHash(ref))
}

// Documents and Images list stored digests in key order.
func (s *ArtifactStore) Documents() ([]common.Hash, error) { return s.digests(prefixDocument) }

func (s *ArtifactStore) Images() ([]common.Hash, error) { return s.digests(prefixImage) }

func (s *ArtifactStore) digests(prefix []byte) ([]common.Hash, error) {
	pairs, err := s.GetWithPrefix(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]common.Hash, len(pairs))
	for i, p := range pairs {
		out[i] = common.BytesToHash(p[0][len(prefix):])
	}
	return out, nil
}
