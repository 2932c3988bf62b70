package convert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jaywantadh/fragments/internal/mediatype"
)

func TestMatrixMatchesTransformTable(t *testing.T) {
	e := New()

	reachable := 0
	for _, r := range matrix {
		for _, target := range r.targets {
			assert.True(t, e.CanConvert(r.source, target), "%s -> %s listed but has no transform", r.source, target)
			reachable++
		}
	}
	for p := range e.table {
		assert.Contains(t, e.Targets(p.from), p.to, "%s -> %s has a transform but is not listed", p.from, p.to)
	}
	assert.Equal(t, reachable, len(e.table))
}

func TestTargetsIncludeSource(t *testing.T) {
	e := New()
	for _, r := range matrix {
		assert.Contains(t, e.Targets(r.source), r.source)
	}
	assert.Nil(t, e.Targets("audio/mpeg"))
}

func TestTargetsOrder(t *testing.T) {
	got := New().Targets(mediatype.TextMarkdown)
	assert.Equal(t, []string{mediatype.TextMarkdown, mediatype.TextHTML, mediatype.TextPlain}, got)

	got[0] = "mutated"
	assert.Equal(t, mediatype.TextMarkdown, New().Targets(mediatype.TextMarkdown)[0])
}

func TestResolveErrors(t *testing.T) {
	e := New()

	_, err := e.Resolve(mediatype.TextPlain, ".png")
	require.ErrorIs(t, err, ErrConversionNotSupported)

	_, err = e.Resolve(mediatype.TextPlain, ".exe")
	require.ErrorIs(t, err, ErrUnknownExtension)
	require.NotErrorIs(t, err, ErrConversionNotSupported)

	_, err = e.Resolve(mediatype.ApplicationYAML, "json")
	require.ErrorIs(t, err, ErrConversionNotSupported)

	_, err = e.Convert("audio/mpeg", []byte("x"), mediatype.TextPlain)
	require.ErrorIs(t, err, ErrConversionNotSupported)
}

func TestIdentityIsByteForByte(t *testing.T) {
	e := New()
	payload := []byte("not valid \xff utf-8, kept as is")
	for _, r := range matrix {
		out, err := e.Convert(r.source, payload, r.source)
		require.NoError(t, err, r.source)
		assert.Equal(t, payload, out, r.source)
	}

	out, _ := e.Convert(mediatype.TextPlain, payload, mediatype.TextPlain)
	out[0] = 'X'
	assert.Equal(t, byte('n'), payload[0], "identity must copy")
}

func TestMarkdown(t *testing.T) {
	e := New()

	out, target, err := e.ConvertExtension(mediatype.TextMarkdown, []byte("# Title"), ".html")
	require.NoError(t, err)
	assert.Equal(t, mediatype.TextHTML, target)
	assert.Contains(t, string(out), "<h1>Title</h1>")

	out, target, err = e.ConvertExtension(mediatype.TextMarkdown, []byte("# Title"), ".txt")
	require.NoError(t, err)
	assert.Equal(t, mediatype.TextPlain, target)
	assert.Equal(t, "# Title", string(out))
}

func TestMarkdownTables(t *testing.T) {
	src := "| a | b |\n|---|---|\n| 1 | 2 |\n"
	out, err := New().Convert(mediatype.TextMarkdown, []byte(src), mediatype.TextHTML)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<table>")
	assert.Contains(t, string(out), "<td>1</td>")
}

func TestToTextReplacesInvalidUTF8(t *testing.T) {
	out, err := New().Convert(mediatype.TextHTML, []byte("<p>a\xffb</p>"), mediatype.TextPlain)
	require.NoError(t, err)
	assert.Equal(t, "<p>a\uFFFDb</p>", string(out))
}

func TestCSVToJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single", "name\nAlice", `[{"name":"Alice"}]`},
		{"header order", "name,age\nAlice,30\nBob,41\n", `[{"name":"Alice","age":"30"},{"name":"Bob","age":"41"}]`},
		{"header only", "name,age\n", `[]`},
		{"empty", "", `[]`},
		{"quoted", "q\n\"a, \"\"b\"\"\"\n", `[{"q":"a, \"b\""}]`},
		{"ragged", "a,b\n1\n1,2,3\n", `[{"a":"1"},{"a":"1","b":"2","field3":"3"}]`},
		{"no html escaping", "tag\n<b>&</b>\n", `[{"tag":"<b>&</b>"}]`},
		{"byte order mark", "\ufeffname\nAlice", `[{"name":"Alice"}]`},
		{"repeated headers", "a,a,a_2\n1,2,3\n", `[{"a":"1","a_3":"2","a_2":"3"}]`},
	}
	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, target, err := e.ConvertExtension(mediatype.TextCSV, []byte(tt.in), "json")
			require.NoError(t, err)
			assert.Equal(t, mediatype.ApplicationJSON, target)
			assert.JSONEq(t, tt.want, string(out))
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestJSONToYAML(t *testing.T) {
	e := New()

	out, target, err := e.ConvertExtension(mediatype.ApplicationJSON, []byte(`{"a":1}`), ".yaml")
	require.NoError(t, err)
	assert.Equal(t, mediatype.ApplicationYAML, target)
	assert.Equal(t, "a: 1\n", string(out))

	out, target, err = e.ConvertExtension(mediatype.ApplicationJSON, []byte(`{"a":1}`), ".yml")
	require.NoError(t, err)
	assert.Equal(t, mediatype.ApplicationYAML, target)
	assert.Equal(t, "a: 1\n", string(out))
}

func TestJSONToYAMLPreservesStructure(t *testing.T) {
	src := `{"zeta":"1","alpha":{"list":[1,2.5,"x",true,null],"empty":{}},"mid":false}`
	out, err := New().Convert(mediatype.ApplicationJSON, []byte(src), mediatype.ApplicationYAML)
	require.NoError(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(out, &doc))
	root := doc.Content[0]
	var keys []string
	for i := 0; i < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "1", decoded["zeta"], "string that looks like a number stays a string")
	assert.Equal(t, false, decoded["mid"])
	alpha := decoded["alpha"].(map[string]any)
	assert.Equal(t, []any{1, 2.5, "x", true, nil}, alpha["list"])
	assert.Equal(t, map[string]any{}, alpha["empty"])
}

func TestJSONToYAMLDuplicateKeys(t *testing.T) {
	src := `{"a":1,"b":{"x":1,"x":[2]},"a":3}`
	out, err := New().Convert(mediatype.ApplicationJSON, []byte(src), mediatype.ApplicationYAML)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded), "output %q", out)
	assert.Equal(t, 3, decoded["a"])
	assert.Equal(t, map[string]any{"x": []any{2}}, decoded["b"])
	assert.True(t, strings.HasPrefix(string(out), "a: 3\n"), "first key keeps its position: %q", out)
}

func TestJSONToYAMLMalformed(t *testing.T) {
	e := New()
	for _, in := range []string{"", "{", `{"a" 1}`, `{"a":1} {"b":2}`} {
		_, err := e.Convert(mediatype.ApplicationJSON, []byte(in), mediatype.ApplicationYAML)
		assert.ErrorIs(t, err, ErrMalformedContent, "input %q", in)
	}
}

func TestJSONToText(t *testing.T) {
	src := "{\n  \"student1\": \"ABC\"\n}\n"
	out, err := New().Convert(mediatype.ApplicationJSON, []byte(src), mediatype.TextPlain)
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
	assert.True(t, strings.HasPrefix(string(out), "{"))
}
