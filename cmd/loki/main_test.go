package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/loki/config"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lifter"
	"github.com/colorfulnotion/loki/storage"
	"github.com/colorfulnotion/loki/telemetry"
	"github.com/colorfulnotion/loki/vm"
	"github.com/colorfulnotion/loki/vm/trace"
)

const sampleLL = `
define i64 @f(i64 %a, i64 %b) {
  %p = mul i64 %a, %b
  %q = sub i64 %p, 1
  ret i64 %q
}
`

func testApp(t *testing.T) *app {
	cfg := config.Default()
	cfg.Generator.NumALUs = 30
	cfg.Generator.Seed = 5
	cfg.Output.CacheDir = filepath.Join(t.TempDir(), "cache")
	return &app{cfg: cfg, tel: telemetry.NewNoOpClient()}
}

func TestParseWords(t *testing.T) {
	words, err := parseWords([]string{"42", "0x10", "-1", "0b101"})
	require.NoError(t, err)
	require.Equal(t, []uint64{42, 16, ^uint64(0), 5}, words)

	_, err = parseWords([]string{"forty"})
	require.Error(t, err)
}

func TestLiftBuildRun(t *testing.T) {
	a := testApp(t)
	path := filepath.Join(t.TempDir(), "f.ll")
	require.NoError(t, os.WriteFile(path, []byte(sampleLL), 0o644))

	fn, err := loadFunction([]string{path}, "", "f")
	require.NoError(t, err)
	doc, err := lifter.New(lifter.Options{}).Lift(fn)
	require.NoError(t, err)

	opts := a.cfg.EmitterOptions()
	img, err := a.build(doc, opts)
	require.NoError(t, err)

	counter := trace.NewCallCounter("f")
	res, m, err := a.execute(context.Background(), img, []uint64{6, 7}, vm.Tracers{counter})
	require.NoError(t, err)
	require.Equal(t, uint64(41), res)
	require.Equal(t, m.Steps(), uint64(len(counter.Trace())+1))

	// second build of the same document comes from the cache
	again, err := a.build(doc, opts)
	require.NoError(t, err)
	require.Equal(t, img.Code, again.Code)

	store, err := storage.NewArtifactStore(a.cfg.Output.CacheDir)
	require.NoError(t, err)
	defer store.Close()
	h, err := doc.Digest()
	require.NoError(t, err)
	_, ok, err := store.LookupBuild(h, opts)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBuildUnpinnedSkipsCache(t *testing.T) {
	a := testApp(t)
	a.cfg.Generator.Seed = 0
	doc := &il.Document{Arguments: []string{"a", "b"}}
	doc.Append(il.Assignment{
		LHS:  il.Reg("v", 64),
		RHS:  []il.Elem{il.Reg("a", 64), il.Reg("b", 64), il.Tag(il.OpAdd, 64)},
		Size: 64,
	})
	opts := a.cfg.EmitterOptions()

	first, err := a.build(doc, opts)
	require.NoError(t, err)
	second, err := a.build(doc, opts)
	require.NoError(t, err)
	require.NotEqual(t, first.Seed, second.Seed)
	require.NotEqual(t, first.Code, second.Code)

	store, err := storage.NewArtifactStore(a.cfg.Output.CacheDir)
	require.NoError(t, err)
	h, err := doc.Digest()
	require.NoError(t, err)
	_, ok, err := store.LookupBuild(h, opts)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, store.Close())

	// pinning the drawn seed reproduces the image
	opts.Seed = first.Seed
	pinned, err := a.build(doc, opts)
	require.NoError(t, err)
	require.Equal(t, first.Code, pinned.Code)
}

func TestLoadFunctionGo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.go")
	require.NoError(t, os.WriteFile(path, []byte("package p\n\nfunc f(a, b int64) int64 { return a*b - 1 }\n"), 0o644))
	fn, err := loadFunction(nil, path, "f")
	require.NoError(t, err)
	require.Len(t, fn.Params, 2)

	_, err = loadFunction(nil, path, "")
	require.Error(t, err)
}
