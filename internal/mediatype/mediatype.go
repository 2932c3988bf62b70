// Package mediatype parses Content-Type values and owns the fixed
// extension-to-MIME-type table shared by validation and conversion.
package mediatype

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// Base MIME types known to the service.
const (
	TextPlain       = "text/plain"
	TextMarkdown    = "text/markdown"
	TextHTML        = "text/html"
	TextCSV         = "text/csv"
	ApplicationJSON = "application/json"
	ApplicationYAML = "application/yaml"
	ImagePNG        = "image/png"
	ImageJPEG       = "image/jpeg"
	ImageWebP       = "image/webp"
	ImageGIF        = "image/gif"
	ImageAVIF       = "image/avif"
)

// ErrMalformed is returned when a Content-Type value is not syntactically valid.
var ErrMalformed = errors.New("malformed content type")

// MediaType is a parsed Content-Type value.
type MediaType struct {
	// Base is the lower-cased type/subtype with parameters stripped.
	Base   string
	Params map[string]string
}

// IsText reports whether the base type belongs to the text supertype.
func (m MediaType) IsText() bool {
	return strings.HasPrefix(m.Base, "text/")
}

// String formats the media type back into a Content-Type value.
func (m MediaType) String() string {
	return mime.FormatMediaType(m.Base, m.Params)
}

// Parse parses a raw Content-Type header value, tolerating parameters.
func Parse(raw string) (MediaType, error) {
	if strings.TrimSpace(raw) == "" {
		return MediaType{}, fmt.Errorf("%w: empty value", ErrMalformed)
	}
	base, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return MediaType{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
	}
	if !strings.Contains(base, "/") {
		return MediaType{}, fmt.Errorf("%w: %q has no subtype", ErrMalformed, raw)
	}
	return MediaType{Base: base, Params: params}, nil
}

// Base returns the base type of a raw Content-Type value.
func Base(raw string) (string, error) {
	mt, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return mt.Base, nil
}

// Set is an immutable set of base MIME types that remembers insertion order.
type Set struct {
	order []string
	index map[string]struct{}
}

// NewSet builds a Set from the given base types. Duplicates are ignored.
func NewSet(types ...string) Set {
	s := Set{index: make(map[string]struct{}, len(types))}
	for _, t := range types {
		t = strings.ToLower(t)
		if _, ok := s.index[t]; ok {
			continue
		}
		s.index[t] = struct{}{}
		s.order = append(s.order, t)
	}
	return s
}

// Contains reports whether base is a member of the set.
func (s Set) Contains(base string) bool {
	_, ok := s.index[base]
	return ok
}

// Types returns a copy of the members in insertion order.
func (s Set) Types() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of members.
func (s Set) Len() int { return len(s.order) }

// IsSupported parses raw and reports whether its base type is in s.
// A syntactically malformed value returns an error wrapping ErrMalformed
// rather than false.
func (s Set) IsSupported(raw string) (bool, error) {
	base, err := Base(raw)
	if err != nil {
		return false, err
	}
	return s.Contains(base), nil
}

var extensions = map[string]string{
	".txt":  TextPlain,
	".md":   TextMarkdown,
	".html": TextHTML,
	".csv":  TextCSV,
	".json": ApplicationJSON,
	".yaml": ApplicationYAML,
	".yml":  ApplicationYAML,
	".png":  ImagePNG,
	".jpg":  ImageJPEG,
	".jpeg": ImageJPEG,
	".webp": ImageWebP,
	".gif":  ImageGIF,
	".avif": ImageAVIF,
}

var canonicalExtensions = map[string]string{
	TextPlain:       ".txt",
	TextMarkdown:    ".md",
	TextHTML:        ".html",
	TextCSV:         ".csv",
	ApplicationJSON: ".json",
	ApplicationYAML: ".yaml",
	ImagePNG:        ".png",
	ImageJPEG:       ".jpg",
	ImageWebP:       ".webp",
	ImageGIF:        ".gif",
	ImageAVIF:       ".avif",
}

// ByExtension resolves a file extension, with or without the leading dot,
// to its base MIME type.
func ByExtension(ext string) (string, bool) {
	ext = strings.ToLower(ext)
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	t, ok := extensions[ext]
	return t, ok
}

// Extension returns the canonical extension for a base MIME type.
func Extension(base string) (string, bool) {
	ext, ok := canonicalExtensions[base]
	return ext, ok
}
