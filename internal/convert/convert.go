// Package convert implements the fragment conversion matrix: which target
// formats a source format may be transformed into, and the transform that
// produces each target.
package convert

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jaywantadh/fragments/internal/mediatype"
)

var (
	// ErrConversionNotSupported is returned when the target is a known type
	// that is not reachable from the source type.
	ErrConversionNotSupported = errors.New("conversion not supported")
	// ErrUnknownExtension is returned when a requested extension is not in the
	// extension table at all.
	ErrUnknownExtension = errors.New("unknown extension")
	// ErrMalformedContent is returned when source bytes cannot be parsed by a
	// non-identity transform.
	ErrMalformedContent = errors.New("malformed source content")
)

// Transform turns source bytes into target bytes.
type Transform func(data []byte) ([]byte, error)

type pair struct {
	from, to string
}

type row struct {
	source  string
	targets []string
}

var imageTypes = []string{
	mediatype.ImagePNG,
	mediatype.ImageJPEG,
	mediatype.ImageWebP,
	mediatype.ImageGIF,
	mediatype.ImageAVIF,
}

// matrix is ordered, source first, so Targets is deterministic.
var matrix = []row{
	{mediatype.TextPlain, []string{mediatype.TextPlain}},
	{mediatype.TextMarkdown, []string{mediatype.TextMarkdown, mediatype.TextHTML, mediatype.TextPlain}},
	{mediatype.TextHTML, []string{mediatype.TextHTML, mediatype.TextPlain}},
	{mediatype.TextCSV, []string{mediatype.TextCSV, mediatype.TextPlain, mediatype.ApplicationJSON}},
	{mediatype.ApplicationJSON, []string{mediatype.ApplicationJSON, mediatype.ApplicationYAML, mediatype.TextPlain}},
	{mediatype.ApplicationYAML, []string{mediatype.ApplicationYAML, mediatype.TextPlain}},
	{mediatype.ImagePNG, imageTypes},
	{mediatype.ImageJPEG, imageTypes},
	{mediatype.ImageWebP, imageTypes},
	{mediatype.ImageGIF, imageTypes},
	{mediatype.ImageAVIF, imageTypes},
}

// Engine executes conversions from the transform table.
type Engine struct {
	rows  map[string][]string
	table map[pair]Transform
}

// New returns an Engine with the fixed conversion matrix.
func New() *Engine {
	e := &Engine{
		rows: make(map[string][]string, len(matrix)),
		table: map[pair]Transform{
			{mediatype.TextPlain, mediatype.TextPlain}:             identity,
			{mediatype.TextMarkdown, mediatype.TextMarkdown}:       identity,
			{mediatype.TextMarkdown, mediatype.TextHTML}:           markdownToHTML,
			{mediatype.TextMarkdown, mediatype.TextPlain}:          toText,
			{mediatype.TextHTML, mediatype.TextHTML}:               identity,
			{mediatype.TextHTML, mediatype.TextPlain}:              toText,
			{mediatype.TextCSV, mediatype.TextCSV}:                 identity,
			{mediatype.TextCSV, mediatype.TextPlain}:               toText,
			{mediatype.TextCSV, mediatype.ApplicationJSON}:         csvToJSON,
			{mediatype.ApplicationJSON, mediatype.ApplicationJSON}: identity,
			{mediatype.ApplicationJSON, mediatype.ApplicationYAML}: jsonToYAML,
			{mediatype.ApplicationJSON, mediatype.TextPlain}:       toText,
			{mediatype.ApplicationYAML, mediatype.ApplicationYAML}: identity,
			{mediatype.ApplicationYAML, mediatype.TextPlain}:       toText,
		},
	}
	for _, from := range imageTypes {
		for _, to := range imageTypes {
			if from == to {
				e.table[pair{from, to}] = identity
				continue
			}
			e.table[pair{from, to}] = transcode(from, to)
		}
	}
	for _, r := range matrix {
		e.rows[r.source] = r.targets
	}
	return e
}

// Default is the engine used when none is injected.
var Default = New()

// Targets returns the ordered MIME types reachable from source, including
// source itself. Unknown sources yield nil.
func (e *Engine) Targets(source string) []string {
	targets := e.rows[source]
	if targets == nil {
		return nil
	}
	out := make([]string, len(targets))
	copy(out, targets)
	return out
}

// CanConvert reports whether target is reachable from source.
func (e *Engine) CanConvert(source, target string) bool {
	_, ok := e.table[pair{source, target}]
	return ok
}

// Resolve maps a requested extension to a target type reachable from source.
func (e *Engine) Resolve(source, ext string) (string, error) {
	target, ok := mediatype.ByExtension(ext)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
	}
	if !e.CanConvert(source, target) {
		return "", fmt.Errorf("%w: %s to %s", ErrConversionNotSupported, source, target)
	}
	return target, nil
}

// Convert transforms data of type source into type target.
func (e *Engine) Convert(source string, data []byte, target string) ([]byte, error) {
	fn, ok := e.table[pair{source, target}]
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrConversionNotSupported, source, target)
	}
	out, err := fn(data)
	if err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", source, target, err)
	}
	return out, nil
}

// ConvertExtension resolves ext against source and converts data, returning
// the output bytes and the resolved target MIME type.
func (e *Engine) ConvertExtension(source string, data []byte, ext string) ([]byte, string, error) {
	target, err := e.Resolve(source, ext)
	if err != nil {
		return nil, "", err
	}
	out, err := e.Convert(source, data, target)
	if err != nil {
		return nil, "", err
	}
	return out, target, nil
}

func identity(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}
