package sanitize

import (
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Buy milk", "Buy milk"},
		{"brackets", "<b>bold</b>", "bbold/b"},
		{"script tag", "<script>alert(1)</script>", "scriptalert(1)/script"},
		{"js scheme any case", "JaVaScRiPt:alert(1)", "alert(1)"},
		{"event handler", `img onerror=alert(1)`, "img alert(1)"},
		{"event handler upper", `x ONLOAD=y`, "x y"},
		{"trim", "  hello world  ", "hello world"},
		{"internal whitespace kept", "a  \t b", "a  \t b"},
		{"scheme exposes handler", "onjavascript:x=1", "1"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Input(tt.in))
		})
	}
}

func TestInput_SinglePassIsNotAlwaysIdempotent(t *testing.T) {
	once := Input("oonx=nx=1")
	assert.Equal(t, "onx=1", once)
	assert.Equal(t, "1", Input(once))
}

func TestInput_Properties(t *testing.T) {
	handler := regexp.MustCompile(`(?i)on\w+=`)
	inputs := []string{
		"<<>>", "a<b>c", "javascript:javascript:", "JAVASCRIPT:void(0)",
		"onclick=x onmouseover=y", "<img src=x onerror=alert(1)>",
		"  \n padded \t ", "select * from tasks",
	}
	for _, in := range inputs {
		out := Input(in)
		assert.NotContains(t, out, "<", in)
		assert.NotContains(t, out, ">", in)
		assert.NotContains(t, strings.ToLower(out), "javascript:", in)
		assert.False(t, handler.MatchString(out), in)
		assert.Equal(t, strings.TrimSpace(out), out, in)
	}
}

func TestValues(t *testing.T) {
	v := url.Values{"title": {" <i>Call</i> "}, "tags": {"a", "javascript:b"}}
	Values(v)
	assert.Equal(t, "iCall/i", v.Get("title"))
	assert.Equal(t, []string{"a", "b"}, v["tags"])
}
