package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTextProcessor_CollapseWhitespace(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"only whitespace", " \t\r\n ", ""},
		{"mixed runs", "  Hello\t\tthere\n\nfriend  ", "Hello there friend"},
		{"non-breaking space", "a\u00a0 b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tp.CollapseWhitespace(tt.in))
		})
	}
}

func TestTextProcessor_TruncateText(t *testing.T) {
	tp := NewTextProcessor(nil)

	assert.Equal(t, "abc", tp.TruncateText("abc", 5))
	assert.Equal(t, "abcde", tp.TruncateText("abcdefgh", 5))
	assert.Equal(t, "abcdefgh", tp.TruncateText("abcdefgh", 0))

	// multi-byte characters count once each
	out := tp.TruncateText(strings.Repeat("é", 10), 4)
	assert.Equal(t, 4, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))
}

func TestTextProcessor_SanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "valid", tp.SanitizeUTF8("valid"))
	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
}

func TestTextProcessor_ProcessText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	out := tp.ProcessText("  x\xff  y  "+strings.Repeat("z", 20), 6)
	assert.Equal(t, "x y zz", out)
}
