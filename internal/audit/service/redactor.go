package service

import (
	"regexp"
	"strings"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
)

// RedactionVersion identifies the rule set baked into persisted records so a
// later rule change does not retroactively misinterpret already-redacted data.
// Bump on any change to the denylist, patterns, or taxonomy rules.
const RedactionVersion = 3

// denylistedKeys are key names whose values are always replaced with the
// redaction marker, case-insensitively, at every object depth. Matched keys
// are replaced rather than deleted to preserve payload shape for
// schema-dependent consumers.
var denylistedKeys = map[string]struct{}{
	"password":      {},
	"passwd":        {},
	"secret":        {},
	"token":         {},
	"api_key":       {},
	"apikey":        {},
	"access_token":  {},
	"refresh_token": {},
	"private_key":   {},
	"credentials":   {},
	"authorization": {},
	"ssn":           {},
	"bank_account":  {},
	"card_number":   {},
}

// patternRule masks substrings matching a PII pattern inside free-form string
// values. Rules are applied in order.
type patternRule struct {
	name    string
	pattern *regexp.Regexp
	replace func(m Masker, match string) string
}

var patternRules = []patternRule{
	{
		name:    "email",
		pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		replace: func(m Masker, match string) string {
			at := strings.Index(match, "@")
			local := m.Mask(match[:at], MaskStrategyPartial, MaskOptions{VisibleChars: 2})
			return local + match[at:]
		},
	},
	// The IBAN rule must run before the phone rule: an IBAN's digit run would
	// otherwise be consumed as a phone number.
	{
		name:    "iban",
		pattern: regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}\b`),
		replace: func(m Masker, match string) string {
			return m.Mask(match, MaskStrategyPartial, MaskOptions{VisibleChars: 4, KeepSuffix: 4})
		},
	},
	{
		name:    "phone",
		pattern: regexp.MustCompile(`\+?[0-9][0-9\-. ()]{7,}[0-9]`),
		replace: func(m Masker, match string) string {
			return maskDigits(match, 2)
		},
	},
}

// fieldRule is a taxonomy-driven redaction for a specific key under a specific
// event type (e.g. truncate user agents, partially mask client IPs).
type fieldRule struct {
	key      string
	strategy MaskStrategy
	opts     MaskOptions
}

// taxonomyRules maps event types to additional per-field redactions beyond
// the global denylist and patterns.
var taxonomyRules = map[string][]fieldRule{
	"auth.login": {
		{key: "user_agent", strategy: MaskStrategyTruncate, opts: MaskOptions{MaxLength: 32}},
		{key: "ip_address", strategy: MaskStrategyPartial, opts: MaskOptions{VisibleChars: 7}},
	},
	"auth.logout": {
		{key: "user_agent", strategy: MaskStrategyTruncate, opts: MaskOptions{MaxLength: 32}},
	},
	"security.access_denied": {
		{key: "user_agent", strategy: MaskStrategyTruncate, opts: MaskOptions{MaxLength: 32}},
		{key: "ip_address", strategy: MaskStrategyPartial, opts: MaskOptions{VisibleChars: 7}},
	},
}

// RedactionResult is the outcome of a redaction pass.
type RedactionResult struct {
	// Event is a sanitized deep copy; the input event is never mutated.
	Event *auditDomain.AuditEvent
	// WasRedacted reports whether the pass changed anything. A second pass
	// over already-redacted data reports false.
	WasRedacted bool
	// RedactionVersion is the rule set version to stamp into the persisted record.
	RedactionVersion int
}

// Redactor strips denylisted keys and masks PII patterns from audit events.
type Redactor interface {
	Redact(event *auditDomain.AuditEvent) RedactionResult
}

// redactor is the default Redactor implementation.
type redactor struct {
	masker Masker
}

// NewRedactor creates a Redactor using the given masking capability.
func NewRedactor(masker Masker) Redactor {
	return &redactor{masker: masker}
}

// Redact returns a sanitized deep copy of the event. Denylisted keys are
// replaced with the redaction marker at every depth (including inside
// arrays), PII patterns are masked in every string value, and taxonomy rules
// for the event type are applied on top.
func (r *redactor) Redact(event *auditDomain.AuditEvent) RedactionResult {
	out := *event
	changed := false

	if event.Details != nil {
		details, detailsChanged := r.redactMap(event.Details, taxonomyRules[event.EventType])
		out.Details = details
		changed = detailsChanged
	}

	return RedactionResult{
		Event:            &out,
		WasRedacted:      changed,
		RedactionVersion: RedactionVersion,
	}
}

// redactMap deep-copies a map while applying all redaction rules. Returns the
// copy and whether any value changed.
func (r *redactor) redactMap(in map[string]any, rules []fieldRule) (map[string]any, bool) {
	out := make(map[string]any, len(in))
	changed := false

	for key, value := range in {
		if _, denied := denylistedKeys[strings.ToLower(key)]; denied {
			if marker, ok := value.(string); !ok || marker != RedactionMarker {
				changed = true
			}
			out[key] = RedactionMarker
			continue
		}

		if rule, ok := matchFieldRule(key, rules); ok {
			if s, isString := value.(string); isString {
				masked := r.masker.Mask(s, rule.strategy, rule.opts)
				if masked != s {
					changed = true
				}
				out[key] = r.maskPatterns(masked, &changed)
				continue
			}
		}

		copied, valueChanged := r.redactValue(value, rules)
		out[key] = copied
		changed = changed || valueChanged
	}

	return out, changed
}

// redactValue deep-copies an arbitrary JSON-shaped value while applying rules.
func (r *redactor) redactValue(value any, rules []fieldRule) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return r.redactMap(v, rules)

	case []any:
		out := make([]any, len(v))
		changed := false
		for i, item := range v {
			copied, itemChanged := r.redactValue(item, rules)
			out[i] = copied
			changed = changed || itemChanged
		}
		return out, changed

	case string:
		changed := false
		masked := r.maskPatterns(v, &changed)
		return masked, changed

	default:
		// Scalars (numbers, bools, nil) carry no redactable structure.
		return v, false
	}
}

// maskPatterns applies all PII pattern rules to a string value.
func (r *redactor) maskPatterns(value string, changed *bool) string {
	out := value
	for _, rule := range patternRules {
		out = rule.pattern.ReplaceAllStringFunc(out, func(match string) string {
			return rule.replace(r.masker, match)
		})
	}
	if out != value {
		*changed = true
	}
	return out
}

// maskDigits masks every digit except the trailing keepLast ones, preserving
// separators so the overall format stays recognizable.
func maskDigits(value string, keepLast int) string {
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}

	var b strings.Builder
	b.Grow(len(value))
	seen := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			seen++
			if seen > digits-keepLast {
				b.WriteRune(r)
			} else {
				b.WriteRune(maskRune)
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// matchFieldRule finds a taxonomy rule for a key, case-insensitively.
func matchFieldRule(key string, rules []fieldRule) (fieldRule, bool) {
	for _, rule := range rules {
		if strings.EqualFold(rule.key, key) {
			return rule, true
		}
	}
	return fieldRule{}, false
}
