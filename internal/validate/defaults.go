package validate

import "strings"

var defaultValidator = New(DefaultRules())

// Default returns the Validator built from DefaultRules.
func Default() *Validator {
	return defaultValidator
}

// Sanitize applies the default validator's Sanitize.
func Sanitize(raw string) string { return defaultValidator.Sanitize(raw) }

// Normalize applies the default validator's Normalize.
func Normalize(raw string) string { return defaultValidator.Normalize(raw) }

// Validate applies the default validator's Validate.
func Validate(raw string) Outcome { return defaultValidator.Validate(raw) }

// IsValidPurpose applies the default validator's IsValidPurpose.
func IsValidPurpose(value string) bool { return defaultValidator.IsValidPurpose(value) }

// ExampleURL returns a sample product URL for a marketplace name,
// falling back to the Amazon example.
func ExampleURL(marketplace string) string {
	if ex, ok := urlExamples[strings.ToLower(strings.TrimSpace(marketplace))]; ok {
		return ex
	}
	return urlExamples["amazon"]
}

// DisplayURL drops the scheme so a URL reads cleanly in the UI.
func DisplayURL(u string) string {
	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return rest
	}
	return strings.TrimPrefix(u, "http://")
}
