package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPartial(t *testing.T) {
	masker := NewMasker()

	tests := []struct {
		name  string
		value string
		opts  MaskOptions
		want  string
	}{
		{"default visible prefix", "johndoe", MaskOptions{}, "jo*****"},
		{"explicit visible prefix", "johndoe", MaskOptions{VisibleChars: 3}, "joh****"},
		{"prefix and suffix", "DE89370400440532013000", MaskOptions{VisibleChars: 4, KeepSuffix: 4}, "DE89**************3000"},
		{"too short to hide anything", "ab", MaskOptions{VisibleChars: 2}, "**"},
		{"exactly visible length", "abcd", MaskOptions{VisibleChars: 2, KeepSuffix: 2}, "****"},
		{"empty value", "", MaskOptions{}, ""},
		{"multibyte runes", "日本語テキスト", MaskOptions{VisibleChars: 2}, "日本*****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, masker.Mask(tt.value, MaskStrategyPartial, tt.opts))
		})
	}
}

func TestMaskPartialIsIdempotent(t *testing.T) {
	masker := NewMasker()

	once := masker.Mask("sensitive-value", MaskStrategyPartial, MaskOptions{VisibleChars: 2})
	twice := masker.Mask(once, MaskStrategyPartial, MaskOptions{VisibleChars: 2})
	assert.Equal(t, once, twice)
}

func TestMaskFixed(t *testing.T) {
	masker := NewMasker()

	assert.Equal(t, RedactionMarker, masker.Mask("hunter2", MaskStrategyFixed, MaskOptions{}))
	assert.Equal(t, RedactionMarker, masker.Mask("", MaskStrategyFixed, MaskOptions{}))
}

func TestMaskTruncate(t *testing.T) {
	masker := NewMasker()

	tests := []struct {
		name  string
		value string
		opts  MaskOptions
		want  string
	}{
		{"shorter than limit", "curl/8.4.0", MaskOptions{MaxLength: 32}, "curl/8.4.0"},
		{"longer than limit", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36", MaskOptions{MaxLength: 32}, "Mozilla/5.0 (X11; Linux x86_64) "},
		{"default limit", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", MaskOptions{}, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, masker.Mask(tt.value, MaskStrategyTruncate, tt.opts))
		})
	}
}

func TestMaskUnknownStrategyFallsBackToFixed(t *testing.T) {
	masker := NewMasker()

	assert.Equal(t, RedactionMarker, masker.Mask("value", MaskStrategy("bogus"), MaskOptions{}))
}
