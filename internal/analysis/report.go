package analysis

import "strings"

// Report is the analysis service's success payload. It is passed through
// verbatim; the helpers below only read from it.
type Report map[string]any

// Verdict is the service's recommendation for the product.
type Verdict string

const (
	VerdictConsider Verdict = "consider"
	VerdictSkip     Verdict = "skip"
	VerdictCaution  Verdict = "caution"
	VerdictNeutral  Verdict = "neutral"
)

// ParseVerdict maps a raw verdict case-insensitively. Anything unrecognised
// is neutral.
func ParseVerdict(s string) Verdict {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case VerdictConsider, VerdictSkip, VerdictCaution:
		return v
	default:
		return VerdictNeutral
	}
}

// Label is the headline shown for the verdict.
func (v Verdict) Label() string {
	switch v {
	case VerdictConsider:
		return "WORTH CONSIDERING"
	case VerdictSkip:
		return "SKIP THIS"
	case VerdictCaution:
		return "PROCEED WITH CAUTION"
	default:
		return "NEUTRAL"
	}
}

// Verdict reads analysis.verdict.
func (r Report) Verdict() Verdict {
	s, _ := r.section("analysis")["verdict"].(string)
	return ParseVerdict(s)
}

// Confidence reads analysis.confidence as a percentage; ok is false when absent.
func (r Report) Confidence() (float64, bool) {
	f, ok := r.section("analysis")["confidence"].(float64)
	return f, ok
}

// ProductTitle reads product.title.
func (r Report) ProductTitle() string {
	s, _ := r.section("product")["title"].(string)
	return s
}

// Marketplace reads product.marketplace.
func (r Report) Marketplace() string {
	s, _ := r.section("product")["marketplace"].(string)
	return s
}

// Findings returns the string entries of analysis.<key>, e.g. "redFlags".
func (r Report) Findings(key string) []string {
	raw, _ := r.section("analysis")[key].([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r Report) section(name string) map[string]any {
	m, _ := r[name].(map[string]any)
	return m
}
