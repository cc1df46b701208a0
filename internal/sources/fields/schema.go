package fields

// TemplatesFile is the YAML override for query templates.
//
//	templates:
//	  - "{identifiers} {phrase} safety data sheet"
//	fields:
//	  un_number:
//	    phrases: ["UN number", "UN ID"]
type TemplatesFile struct {
	Templates   []string             `yaml:"templates,omitempty"`
	MaxVariants int                  `yaml:"max_variants,omitempty"`
	Fields      map[string]FieldSpec `yaml:"fields,omitempty"`
}

// FieldSpec lists the search phrases for one field, most specific first.
type FieldSpec struct {
	Phrases []string `yaml:"phrases"`
}
