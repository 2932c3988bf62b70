package convert

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// markdown is safe to share; Convert keeps no state between calls.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func markdownToHTML(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(data, &buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	return buf.Bytes(), nil
}

// toText decodes the source as UTF-8. Invalid sequences become U+FFFD.
func toText(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return bytes.Clone(data), nil
	}
	return []byte(strings.ToValidUTF8(string(data), "\uFFFD")), nil
}

// writeJSONString appends s as a JSON string without HTML escaping.
func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
	return nil
}

// csvToJSON treats the first record as the header. Cells beyond the header
// are keyed field<N> (1-based column), missing trailing cells are omitted.
// A repeated header name is suffixed _2, _3 and so on.
func csvToJSON(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	header = uniqueKeys(header)

	var buf bytes.Buffer
	buf.WriteByte('[')
	for n := 0; ; n++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, cell := range rec {
			key := "field" + strconv.Itoa(i+1)
			if i < len(header) {
				key = header[i]
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(&buf, key); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := writeJSONString(&buf, cell); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// uniqueKeys renames repeated header names so each row object has distinct
// keys.
func uniqueKeys(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		used[h] = true
		out[i] = h
	}
	for i := range out {
		for j := 0; j < i; j++ {
			if out[j] != out[i] {
				continue
			}
			for n := 2; ; n++ {
				candidate := out[i] + "_" + strconv.Itoa(n)
				if !used[candidate] {
					used[candidate] = true
					out[i] = candidate
					break
				}
			}
			break
		}
	}
	return out
}

// jsonToYAML walks the JSON token stream into a yaml.Node tree so object key
// order survives the round trip.
func jsonToYAML(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	node, err := decodeNode(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON document", ErrMalformedContent)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			// Duplicate keys: the last value wins at the first key's position.
			seen := make(map[string]int)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not a string", keyTok)
				}
				val, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				if i, dup := seen[key]; dup {
					n.Content[i+1] = val
					continue
				}
				seen[key] = len(n.Content)
				n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				val, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", v)
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}, nil
	case json.Number:
		// Untagged so the emitter writes the number as a plain scalar.
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v.String()}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %T", tok)
}
