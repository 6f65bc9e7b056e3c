package validate

import "regexp"

// MaxInputLength caps sanitised input, counted in runes.
const MaxInputLength = 2048

// PathRule rejects URLs whose lower-cased path starts with Prefix.
type PathRule struct {
	Prefix  string
	Message string
}

// HostRule rejects hostnames matching Pattern.
type HostRule struct {
	Pattern *regexp.Regexp
	Message string
}

// Purpose is a usage tag the analysis service understands.
type Purpose struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Rules is the static data a Validator checks against. Validators copy the
// slices on construction, so mutating a Rules value after New has no effect.
type Rules struct {
	MaxLength      int
	Domains        []string
	HostExclusions []HostRule
	PathRules      []PathRule
	Purposes       []Purpose
}

// DefaultRules returns the built-in retailer allow-list and rejection rules.
//
// walmart.com and target.com are deliberately absent: the analysis service
// answers those with a 422 "Unsupported retailer" response, and the client
// surfaces that as a guided recovery rather than pre-filtering it.
func DefaultRules() Rules {
	return Rules{
		MaxLength: MaxInputLength,
		Domains: []string{
			// US
			"amazon.com", "bestbuy.com", "newegg.com", "ebay.com",
			"bhphotovideo.com", "costco.com", "microcenter.com",

			// India
			"amazon.in", "flipkart.com", "myntra.com", "croma.com",
			"reliancedigital.in", "vijaysales.com", "tatacliq.com",
			"snapdeal.com", "paytmmall.com", "shopclues.com",

			// Amazon regional storefronts
			"amazon.co.uk", "amazon.de", "amazon.fr", "amazon.ca", "amazon.com.au",
			"amazon.it", "amazon.es", "amazon.co.jp", "amazon.com.br",

			// Manufacturers
			"hp.com", "dell.com", "apple.com", "lenovo.com", "asus.com",
			"acer.com", "msi.com", "razer.com", "microsoft.com", "samsung.com",

			"adorama.com", "frys.com", "tigerdirect.com", "overstock.com",
		},
		HostExclusions: []HostRule{
			{Pattern: regexp.MustCompile(`(?i)^localhost$`), Message: "Localhost URLs not supported"},
			{Pattern: regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`), Message: "IP addresses not supported"},
			{Pattern: regexp.MustCompile(`(?i)\.(test|local|dev)$`), Message: "Development domains not supported"},
			{Pattern: regexp.MustCompile(`^[^.]+$`), Message: "Invalid domain format"},
		},
		PathRules: []PathRule{
			{Prefix: "/search", Message: "Please use a direct product URL, not search results"},
			{Prefix: "/category", Message: "Please use a direct product URL, not category page"},
			{Prefix: "/cart", Message: "Please use a product URL, not cart page"},
			{Prefix: "/account", Message: "Please use a product URL, not account page"},
		},
		Purposes: []Purpose{
			{Value: "gaming", Label: "Gaming & Entertainment", Description: "High-end gaming, streaming, VR"},
			{Value: "work-office", Label: "Office Work & Productivity", Description: "Documents, spreadsheets, presentations, video calls"},
			{Value: "programming", Label: "Programming & Development", Description: "Coding, software development, web development"},
			{Value: "content-creation", Label: "Content Creation", Description: "Video editing, photo editing, graphic design"},
			{Value: "student", Label: "Student Use", Description: "Research, assignments, online classes, note-taking"},
			{Value: "business", Label: "Business & Professional", Description: "Meetings, presentations, business applications"},
			{Value: "casual", Label: "Casual Use", Description: "Web browsing, social media, streaming videos"},
			{Value: "data-science", Label: "Data Science & Analytics", Description: "Machine learning, data analysis, statistical computing"},
			{Value: "engineering", Label: "Engineering & CAD", Description: "CAD software, 3D modeling, engineering simulations"},
			{Value: "media-consumption", Label: "Media & Entertainment", Description: "Movies, music, reading, light gaming"},
			{Value: "travel", Label: "Travel & Portability", Description: "Lightweight, long battery life, mobile work"},
			{Value: "budget", Label: "Budget-Conscious", Description: "Best value for money, basic computing needs"},
		},
	}
}

// urlExamples are shown next to validation errors to hint at a product URL shape.
var urlExamples = map[string]string{
	"amazon":   "amazon.com/product-name/dp/B123456789",
	"flipkart": "flipkart.com/product-name/p/itm123456789",
	"bestbuy":  "bestbuy.com/site/product-name/1234567.p",
	"newegg":   "newegg.com/product-name/p/N82E16834123456",
	"croma":    "croma.com/product-name/p/123456",
}
