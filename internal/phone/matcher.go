// Package phone expands free-form phone input into the set of representations
// that might be stored for a voter. Registration enforces no format, so the
// matcher trades strictness for permissive digit-equal matching: local,
// national, and international renderings of one configured country all
// resolve to the same voter.
package phone

import "strings"

// Matcher generates variants for a single-country numbering scheme.
type Matcher struct {
	countryCode string // e.g. "92"
	trunkPrefix string // e.g. "0"
}

// NewMatcher builds a matcher for one country. Empty arguments fall back to
// the Pakistani scheme the system was built around.
func NewMatcher(countryCode, trunkPrefix string) *Matcher {
	if countryCode == "" {
		countryCode = "92"
	}
	if trunkPrefix == "" {
		trunkPrefix = "0"
	}
	return &Matcher{countryCode: countryCode, trunkPrefix: trunkPrefix}
}

// Digits strips everything but digits from raw input.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// Expand returns the deterministic, deduplicated variant set for raw input:
// the trimmed input verbatim, its digits-only form, the trunk-prefixed and
// bare national forms, and the international forms with and without a plus.
// Input with no digits yields only its verbatim form (which can never be
// digit-equal to a stored number), so garbage input fails to match rather
// than erroring.
func (m *Matcher) Expand(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	digits := Digits(trimmed)

	var variants []string
	seen := make(map[string]struct{})
	add := func(v string) {
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}

	add(trimmed)
	if digits == "" {
		return variants
	}
	add(digits)

	national := digits
	national = strings.TrimPrefix(national, m.countryCode)
	national = strings.TrimPrefix(national, m.trunkPrefix)

	add(m.trunkPrefix + national)
	add(national)
	add(m.countryCode + national)
	add("+" + m.countryCode + national)

	return variants
}

// Matches reports whether bearer-typed input and a stored phone refer to the
// same number: any variant of one digit-equal to any variant of the other.
func (m *Matcher) Matches(raw, stored string) bool {
	rawDigits := digitSet(m.Expand(raw))
	if len(rawDigits) == 0 {
		return false
	}
	for _, v := range m.Expand(stored) {
		if _, ok := rawDigits[Digits(v)]; ok {
			return true
		}
	}
	return false
}

// MatchesAny reports whether raw matches any of the stored phones.
func (m *Matcher) MatchesAny(raw string, stored []string) bool {
	for _, s := range stored {
		if m.Matches(raw, s) {
			return true
		}
	}
	return false
}

func digitSet(variants []string) map[string]struct{} {
	set := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		if d := Digits(v); d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}
