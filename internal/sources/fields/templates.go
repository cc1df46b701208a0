// Package fields supplies per-field search phrases and query templates, with
// built-in defaults that a YAML file can extend or override at runtime.
package fields

import (
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

const (
	placeholderIdentifiers = "{identifiers}"
	placeholderPhrase      = "{phrase}"

	DefaultMaxVariants = 6
)

var defaultTemplates = []string{
	"{identifiers} {phrase} safety data sheet",
	"{identifiers} {phrase} SDS",
}

var defaultPhrases = map[string][]string{
	domain.FieldCASNumber:         {"CAS number", "chemical abstract service", "CAS registry"},
	domain.FieldUNNumber:          {"UN number", "UN ID", "numero ONU"},
	domain.FieldHazardClass:       {"UN hazard class", "classe ONU", "hazard classification"},
	domain.FieldPackingGroup:      {"packing group", "grupo de embalagem", "UN packing group"},
	domain.FieldIncompatibilities: {"incompatibilities", "storage incompatibilities", "incompatible materials"},
	domain.FieldManufacturer:      {"manufacturer", "fabricante", "supplier"},
	domain.FieldProductName:       {"product name", "nome do produto", "trade name"},
}

// Set is an immutable snapshot of templates and phrases.
type Set struct {
	templates   []string
	phrases     map[string][]string
	maxVariants int
}

// Defaults returns the built-in set.
func Defaults() *Set {
	s := &Set{
		templates:   append([]string(nil), defaultTemplates...),
		phrases:     make(map[string][]string, len(defaultPhrases)),
		maxVariants: DefaultMaxVariants,
	}
	for k, v := range defaultPhrases {
		s.phrases[k] = append([]string(nil), v...)
	}
	return s
}

// Merge returns a copy of s with file applied on top. Templates in file
// replace the defaults; fields in file replace the phrases of that field.
func (s *Set) Merge(file TemplatesFile) *Set {
	out := &Set{
		templates:   append([]string(nil), s.templates...),
		phrases:     make(map[string][]string, len(s.phrases)+len(file.Fields)),
		maxVariants: s.maxVariants,
	}
	for k, v := range s.phrases {
		out.phrases[k] = v
	}
	if len(file.Templates) > 0 {
		out.templates = append([]string(nil), file.Templates...)
	}
	if file.MaxVariants > 0 {
		out.maxVariants = file.MaxVariants
	}
	for name, spec := range file.Fields {
		out.phrases[domain.CanonicalField(name)] = append([]string(nil), spec.Phrases...)
	}
	return out
}

// Phrases returns the phrases for field. Unknown fields search for their own
// name with underscores turned into spaces.
func (s *Set) Phrases(field string) []string {
	if p, ok := s.phrases[field]; ok && len(p) > 0 {
		return p
	}
	return []string{strings.ReplaceAll(field, "_", " ")}
}

// Queries expands every phrase through every template, deduplicated in
// order and capped at the variant limit. The first entry is the primary query.
func (s *Set) Queries(field string, ids domain.Identifiers) []string {
	idText := ids.Text()
	seen := make(map[string]struct{})
	var out []string

	for _, phrase := range s.Phrases(field) {
		for _, tpl := range s.templates {
			q := strings.ReplaceAll(tpl, placeholderIdentifiers, idText)
			q = strings.ReplaceAll(q, placeholderPhrase, phrase)
			q = strings.Join(strings.Fields(q), " ")
			if q == "" {
				continue
			}
			if _, dup := seen[q]; dup {
				continue
			}
			seen[q] = struct{}{}
			out = append(out, q)
			if len(out) >= s.maxVariants {
				return out
			}
		}
	}
	return out
}

// Registry holds the active Set behind a lock so reloads can swap it while
// searches are running.
type Registry struct {
	mu         sync.RWMutex
	set        *Set
	lastReload time.Time
}

// NewRegistry starts from the built-in defaults.
func NewRegistry() *Registry {
	return &Registry{set: Defaults()}
}

// Current returns the active snapshot.
func (r *Registry) Current() *Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// Apply replaces the active snapshot with the defaults merged with file.
func (r *Registry) Apply(file TemplatesFile) {
	next := Defaults().Merge(file)

	r.mu.Lock()
	r.set = next
	r.lastReload = time.Now()
	r.mu.Unlock()
}

// LastReload returns when Apply last ran.
func (r *Registry) LastReload() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastReload
}
