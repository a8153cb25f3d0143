package analysis

import "strings"

// Supported analysis domains. Each selects its own prompt framing and entity taxonomy.
const (
	DomainGeneral = "general"
	DomainLegal   = "legal"
	DomainMedical = "medical"
	DomainPolice  = "police"
)

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage = "fa"

// DefaultSchema is the only extraction schema currently defined.
const DefaultSchema = "general"

var domains = []string{DomainGeneral, DomainLegal, DomainMedical, DomainPolice}

// Domains lists the supported domains in display order.
func Domains() []string {
	out := make([]string, len(domains))
	copy(out, domains)
	return out
}

// Schemas lists the supported extraction schemas.
func Schemas() []string {
	return []string{DefaultSchema}
}

// NormalizeDomain lower-cases d and falls back to the general domain for
// anything unknown or empty.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	for _, known := range domains {
		if d == known {
			return d
		}
	}
	return DomainGeneral
}

// NormalizeLanguage lower-cases l, defaulting to DefaultLanguage.
func NormalizeLanguage(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if l == "" {
		return DefaultLanguage
	}
	return l
}

// IsPersian reports whether a language tag selects Persian prompts.
func IsPersian(lang string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), "fa")
}
