// Package service implements the redaction services applied to audit events
// before anything is persisted.
package service

import (
	"strings"
)

// MaskStrategy selects how a sensitive value is transformed.
type MaskStrategy string

const (
	// MaskStrategyPartial keeps a small visible prefix and masks the rest.
	MaskStrategyPartial MaskStrategy = "partial"
	// MaskStrategyFixed replaces the whole value with a fixed marker.
	MaskStrategyFixed MaskStrategy = "fixed"
	// MaskStrategyTruncate cuts the value to a maximum length.
	MaskStrategyTruncate MaskStrategy = "truncate"
)

// MaskOptions tunes a masking operation.
type MaskOptions struct {
	// VisibleChars is the number of leading characters kept by the partial
	// strategy. Defaults to 2 and is clamped so at least one character is
	// always masked.
	VisibleChars int
	// KeepSuffix is the number of trailing characters kept by the partial
	// strategy in addition to the visible prefix.
	KeepSuffix int
	// MaxLength is the length the truncate strategy cuts to. Defaults to 32.
	MaxLength int
}

const (
	maskRune = '*'

	// RedactionMarker replaces the values of denylisted keys. The marker is
	// stable so a second redaction pass is a no-op.
	RedactionMarker = "[REDACTED]"
)

// Masker implements the masking capability consumed by the redaction pipeline.
type Masker interface {
	Mask(value string, strategy MaskStrategy, opts MaskOptions) string
}

// masker is the default Masker implementation.
type masker struct{}

// NewMasker creates the default Masker.
func NewMasker() Masker {
	return &masker{}
}

// Mask transforms a sensitive value according to the strategy. Unknown
// strategies fall back to the fixed marker: when in doubt, redact fully.
func (m *masker) Mask(value string, strategy MaskStrategy, opts MaskOptions) string {
	switch strategy {
	case MaskStrategyPartial:
		return maskPartial(value, opts)
	case MaskStrategyTruncate:
		return truncate(value, opts)
	case MaskStrategyFixed:
		return RedactionMarker
	default:
		return RedactionMarker
	}
}

// maskPartial keeps a short visible prefix (and optional suffix) and replaces
// the middle with mask runes. Values too short to keep anything hidden are
// fully masked.
func maskPartial(value string, opts MaskOptions) string {
	visible := opts.VisibleChars
	if visible <= 0 {
		visible = 2
	}
	suffix := opts.KeepSuffix
	if suffix < 0 {
		suffix = 0
	}

	runes := []rune(value)
	if len(runes) <= visible+suffix {
		return strings.Repeat(string(maskRune), len(runes))
	}

	var b strings.Builder
	b.Grow(len(runes))
	for i, r := range runes {
		switch {
		case i < visible:
			b.WriteRune(r)
		case suffix > 0 && i >= len(runes)-suffix:
			b.WriteRune(r)
		case r == maskRune:
			b.WriteRune(r)
		default:
			b.WriteRune(maskRune)
		}
	}
	return b.String()
}

// truncate cuts the value to at most MaxLength runes.
func truncate(value string, opts MaskOptions) string {
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = 32
	}

	runes := []rune(value)
	if len(runes) <= maxLen {
		return value
	}
	return string(runes[:maxLen])
}
