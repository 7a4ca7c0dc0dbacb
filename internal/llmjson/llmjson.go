// Package llmjson pulls a JSON value out of free-form model output.
//
// Models asked for "only JSON" still wrap it in prose or markdown code fences.
// Extraction strips fence markers, then takes the text from the first opening
// delimiter to the last closing delimiter, inclusive, and decodes only that.
package llmjson

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/sells-group/builder-radar/internal/fault"
)

// Delim selects which JSON container to look for.
type Delim struct {
	Open  byte
	Close byte
}

var (
	// Array matches a top-level JSON array.
	Array = Delim{Open: '[', Close: ']'}
	// Object matches a top-level JSON object.
	Object = Delim{Open: '{', Close: '}'}
)

// ErrNotFound is returned when the text has no opening/closing delimiter pair.
var ErrNotFound = errors.New("llmjson: no JSON value found")

var fenceRe = regexp.MustCompile("```[a-zA-Z0-9_-]*")

// StripFences removes markdown code-fence markers (```json, ```).
func StripFences(text string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
}

// Find returns the substring spanning the first d.Open through the last
// d.Close, after fence markers are stripped.
func Find(text string, d Delim) (string, bool) {
	clean := StripFences(text)
	start := strings.IndexByte(clean, d.Open)
	end := strings.LastIndexByte(clean, d.Close)
	if start < 0 || end < 0 || end <= start {
		return "", false
	}
	return clean[start : end+1], true
}

// Decode locates the value delimited by d in text and unmarshals it into v.
// It returns ErrNotFound when no delimiter pair exists, and a *fault.ParseError
// when one exists but the enclosed text is not a single JSON value for v.
func Decode(text string, d Delim, v any, what string) error {
	raw, ok := Find(text, d)
	if !ok {
		return ErrNotFound
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &fault.ParseError{What: what, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &fault.ParseError{What: what, Err: errors.New("unexpected content after JSON value")}
	}
	return nil
}
