// Package validate decides whether user input names a product page on a
// retailer the analysis service can scrape, and explains why when it does not.
package validate

import (
	"strings"
	"unicode/utf8"

	whatwgurl "github.com/nlnwa/whatwg-url/url"
)

const (
	minInputLength = 5
	minPathLength  = 3
)

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// Validator checks URLs and purpose tags against an immutable Rules set.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	maxLength int
	domains   []string
	hostRules []HostRule
	pathRules []PathRule
	purposes  []Purpose
	byValue   map[string]Purpose
}

// New builds a Validator from rules. Domains are compared case-insensitively.
func New(rules Rules) *Validator {
	v := &Validator{
		maxLength: rules.MaxLength,
		domains:   make([]string, 0, len(rules.Domains)),
		hostRules: append([]HostRule(nil), rules.HostExclusions...),
		pathRules: make([]PathRule, 0, len(rules.PathRules)),
		purposes:  append([]Purpose(nil), rules.Purposes...),
		byValue:   make(map[string]Purpose, len(rules.Purposes)),
	}
	if v.maxLength <= 0 {
		v.maxLength = MaxInputLength
	}
	for _, d := range rules.Domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			v.domains = append(v.domains, d)
		}
	}
	for _, r := range rules.PathRules {
		v.pathRules = append(v.pathRules, PathRule{Prefix: strings.ToLower(r.Prefix), Message: r.Message})
	}
	for _, p := range rules.Purposes {
		v.byValue[p.Value] = p
	}
	return v
}

// Sanitize trims input, strips angle brackets and caps the length.
func (v *Validator) Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	s = angleBrackets.Replace(s)
	return truncate(s, v.maxLength)
}

// Normalize sanitises raw and prefixes https:// when no http(s) scheme is present.
// The result never exceeds the length cap and normalising it again is a no-op.
func (v *Validator) Normalize(raw string) string {
	s := v.Sanitize(raw)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(truncate(EnsureScheme(s), v.maxLength))
}

// EnsureScheme trims s and prepends https:// unless it already starts with
// http:// or https://. Empty input stays empty.
func EnsureScheme(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "https://" + s
}

// Validate runs the checks in order and reports the first failure.
// The outcome depends only on Normalize(raw).
func (v *Validator) Validate(raw string) Outcome {
	normalized := v.Normalize(raw)

	bare := stripSchemeAndWWW(normalized)
	if utf8.RuneCountInString(bare) < minInputLength {
		return invalid(ReasonTooShort, MsgTooShort)
	}
	if !strings.Contains(bare, ".") {
		return invalid(ReasonInvalidDomain, MsgInvalidDomain)
	}

	u, err := whatwgurl.Parse(normalized)
	if err != nil {
		return invalid(ReasonMalformedURL, MsgMalformedURL)
	}
	if p := u.Protocol(); p != "http:" && p != "https:" {
		return invalid(ReasonUnsupportedProtocol, MsgUnsupportedProtocol)
	}

	hostname := u.Hostname()
	if hostname == "" {
		return invalid(ReasonInvalidDomain, MsgMissingHostname)
	}
	if !strings.Contains(hostname, ".") {
		return invalid(ReasonInvalidDomain, MsgInvalidDomain)
	}
	for _, rule := range v.hostRules {
		if rule.Pattern.MatchString(hostname) {
			return invalid(ReasonExcludedHost, rule.Message)
		}
	}

	hostname = strings.ToLower(hostname)
	if !v.IsSupportedHost(hostname) {
		return invalid(ReasonUnsupportedRetailer, retailerHint(hostname))
	}

	path := u.Pathname()
	if path == "" || path == "/" {
		return invalid(ReasonHomepage, MsgHomepage)
	}
	path = strings.ToLower(path)
	for _, rule := range v.pathRules {
		if strings.HasPrefix(path, rule.Prefix) {
			return invalid(ReasonDisallowedPath, rule.Message)
		}
	}
	if utf8.RuneCountInString(path) < minPathLength {
		return invalid(ReasonPathTooShort, MsgPathTooShort)
	}

	return Outcome{}
}

// IsSupportedHost reports whether hostname is an allow-listed domain, its
// www. form, or a subdomain of one.
func (v *Validator) IsSupportedHost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	for _, d := range v.domains {
		if hostname == d || hostname == "www."+d || strings.HasSuffix(hostname, "."+d) {
			return true
		}
	}
	return false
}

// Domains returns a copy of the allow-list.
func (v *Validator) Domains() []string {
	return append([]string(nil), v.domains...)
}

// IsValidPurpose reports whether value is one of the configured purpose tags.
func (v *Validator) IsValidPurpose(value string) bool {
	if value == "" {
		return false
	}
	_, ok := v.byValue[value]
	return ok
}

// Purposes returns the purpose tags in display order.
func (v *Validator) Purposes() []Purpose {
	return append([]Purpose(nil), v.purposes...)
}

// PurposeLabel returns the display label for a tag, or the tag itself when unknown.
func (v *Validator) PurposeLabel(value string) string {
	if p, ok := v.byValue[value]; ok {
		return p.Label
	}
	return value
}

func retailerHint(hostname string) string {
	switch {
	case strings.Contains(hostname, "amazon"):
		return MsgAmazonHint
	case strings.Contains(hostname, "flipkart"):
		return MsgFlipkartHint
	case strings.Contains(hostname, "ebay"):
		return MsgEbayHint
	default:
		return MsgGenericHint
	}
}

func stripSchemeAndWWW(s string) string {
	if rest, ok := strings.CutPrefix(s, "https://"); ok {
		s = rest
	} else {
		s = strings.TrimPrefix(s, "http://")
	}
	return strings.TrimPrefix(s, "www.")
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
