package il

import (
	"encoding/json"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Diff renders the differences between two documents as an annotated JSON
// listing. Equal documents yield an empty string.
func Diff(a, b *Document, coloring bool) (string, error) {
	left, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	right, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	delta, err := gojsondiff.New().Compare(left, right)
	if err != nil {
		return "", err
	}
	if !delta.Modified() {
		return "", nil
	}
	var leftObj interface{}
	if err := json.Unmarshal(left, &leftObj); err != nil {
		return "", err
	}
	cfg := formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	}
	return formatter.NewAsciiFormatter(leftObj, cfg).Format(delta)
}
