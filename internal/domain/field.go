package domain

import "strings"

// NotFound is the sentinel value of an unresolved field.
const NotFound = "NOT FOUND"

// Confidence levels assigned by the resolver (0.0 - 1.0 scale).
const (
	ConfidenceAnswer     = 0.8
	ConfidenceSnippet    = 0.6
	ConfidencePageMatch  = 0.7
	ConfidencePageWindow = 0.5
	ConfidenceNone       = 0.0
)

// Origin describes where a FieldResult value came from.
type Origin string

const (
	OriginAnswer  Origin = "answer"
	OriginSnippet Origin = "snippet"
	OriginPage    Origin = "page"
	OriginCache   Origin = "cache"
	OriginNone    Origin = "none"
)

// Canonical field names understood by the query builder and the guessers.
const (
	FieldProductName       = "product_name"
	FieldCASNumber         = "cas_number"
	FieldUNNumber          = "un_number"
	FieldManufacturer      = "manufacturer"
	FieldHazardClass       = "hazard_class"
	FieldPackingGroup      = "packing_group"
	FieldIncompatibilities = "incompatibilities"
)

// fieldAliases maps the field names used by the upstream document pipeline
// (Portuguese SDS labels) onto canonical names.
var fieldAliases = map[string]string{
	"nome_produto":       FieldProductName,
	"numero_cas":         FieldCASNumber,
	"numero_onu":         FieldUNNumber,
	"fabricante":         FieldManufacturer,
	"classificacao_onu":  FieldHazardClass,
	"grupo_embalagem":    FieldPackingGroup,
	"incompatibilidades": FieldIncompatibilities,
}

// CanonicalField returns the canonical name for a field, resolving aliases.
// Unknown names are returned lower-cased and trimmed.
func CanonicalField(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if c, ok := fieldAliases[n]; ok {
		return c
	}
	return n
}

// FieldResult is the unit returned to the caller for one requested field.
type FieldResult struct {
	FieldName  string  `json:"field_name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	SourceURL  string  `json:"source_url,omitempty"`
	Origin     Origin  `json:"origin"`
	Error      string  `json:"error,omitempty"`
}

// Resolved reports whether the result carries a usable value.
func (r FieldResult) Resolved() bool {
	return r.Value != NotFound && r.Confidence > 0
}

// Unresolved builds a zero-confidence result with an optional error note.
func Unresolved(field, note string) FieldResult {
	return FieldResult{
		FieldName:  field,
		Value:      NotFound,
		Confidence: ConfidenceNone,
		Origin:     OriginNone,
		Error:      note,
	}
}

// Better returns whichever of a and b has the higher confidence.
// On a tie a is kept.
func Better(a, b FieldResult) FieldResult {
	if b.Confidence > a.Confidence {
		return b
	}
	return a
}
