package validate

import (
	"errors"
	"fmt"
)

// ErrInvalidURL wraps every rejected Outcome returned through Outcome.Err.
var ErrInvalidURL = errors.New("invalid product url")

// Reason identifies which check rejected a URL.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonTooShort
	ReasonInvalidDomain
	ReasonMalformedURL
	ReasonUnsupportedProtocol
	ReasonExcludedHost
	ReasonUnsupportedRetailer
	ReasonHomepage
	ReasonDisallowedPath
	ReasonPathTooShort
)

var reasonNames = map[Reason]string{
	ReasonNone:                "",
	ReasonTooShort:            "too_short",
	ReasonInvalidDomain:       "invalid_domain",
	ReasonMalformedURL:        "malformed_url",
	ReasonUnsupportedProtocol: "unsupported_protocol",
	ReasonExcludedHost:        "excluded_host",
	ReasonUnsupportedRetailer: "unsupported_retailer",
	ReasonHomepage:            "homepage",
	ReasonDisallowedPath:      "disallowed_path",
	ReasonPathTooShort:        "path_too_short",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// MarshalText renders the reason as its snake_case name.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Outcome is the result of Validate. The zero value is a valid outcome.
type Outcome struct {
	Reason  Reason
	Message string
}

// Valid reports whether no check rejected the input.
func (o Outcome) Valid() bool {
	return o.Reason == ReasonNone
}

// Err returns nil for a valid outcome, otherwise an error wrapping ErrInvalidURL.
func (o Outcome) Err() error {
	if o.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidURL, o.Message)
}

func invalid(reason Reason, message string) Outcome {
	return Outcome{Reason: reason, Message: message}
}

// Fixed rejection messages.
const (
	MsgTooShort            = "URL is too short"
	MsgInvalidDomain       = "Please enter a valid domain (e.g., amazon.com)"
	MsgMalformedURL        = "Invalid URL format. Example: https://www.amazon.com/product-name/dp/B123456789"
	MsgUnsupportedProtocol = "URL must use http:// or https://"
	MsgMissingHostname     = "Invalid domain name"
	MsgHomepage            = "Please enter a complete product URL, not the homepage"
	MsgPathTooShort        = "URL path too short - please use a complete product URL"

	MsgAmazonHint   = "Use amazon.com, amazon.in, or other supported Amazon domains"
	MsgFlipkartHint = "Use flipkart.com (Indian e-commerce)"
	MsgEbayHint     = "Use ebay.com for eBay products"
	MsgGenericHint  = "Supported: Amazon, Flipkart, Best Buy, Newegg, Croma, and more"
)
