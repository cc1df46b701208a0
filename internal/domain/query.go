package domain

import (
	"strings"
	"time"
)

// Identifiers are the known facts about a product used to build queries.
type Identifiers struct {
	ProductName string `json:"product_name,omitempty"`
	CASNumber   string `json:"cas_number,omitempty"`
	UNNumber    string `json:"un_number,omitempty"`
}

// IsEmpty reports whether no identifier carries a value.
func (id Identifiers) IsEmpty() bool {
	return strings.TrimSpace(id.ProductName) == "" &&
		strings.TrimSpace(id.CASNumber) == "" &&
		strings.TrimSpace(id.UNNumber) == ""
}

// Text renders identifiers as a search prefix.
// Example: {ethanol, 64-17-5, ""} -> "ethanol CAS 64-17-5"
func (id Identifiers) Text() string {
	parts := make([]string, 0, 3)
	if v := strings.TrimSpace(id.ProductName); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(id.CASNumber); v != "" {
		parts = append(parts, "CAS "+v)
	}
	if v := strings.TrimSpace(id.UNNumber); v != "" {
		parts = append(parts, "UN "+v)
	}
	return strings.Join(parts, " ")
}

// SearchQuery is one field-search attempt. It is never mutated after creation.
type SearchQuery struct {
	Text        string
	Language    string
	Field       string
	RequestedAt time.Time
}

// NewSearchQuery builds a query with whitespace collapsed.
func NewSearchQuery(text, language, field string, now time.Time) SearchQuery {
	return SearchQuery{
		Text:        strings.Join(strings.Fields(text), " "),
		Language:    language,
		Field:       field,
		RequestedAt: now,
	}
}

// Hit is the intermediate schema every search backend adapter must produce.
type Hit struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Answer  string `json:"answer,omitempty"`
}
