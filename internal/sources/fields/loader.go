package fields

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of the field templates file
type Loader struct {
	filePath string
}

// NewLoader creates a new templates loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.filePath }

// Load reads and validates the templates file
func (l *Loader) Load() (TemplatesFile, error) {
	var file TemplatesFile

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return file, fmt.Errorf("failed to read templates file: %w", err)
	}

	// environment references such as ${SDS_SUFFIX} are expanded before parsing
	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("failed to parse templates yaml: %w", err)
	}
	if err := validate(file); err != nil {
		return file, err
	}
	return file, nil
}

func validate(file TemplatesFile) error {
	for _, t := range file.Templates {
		if !strings.Contains(t, placeholderPhrase) {
			return fmt.Errorf("template %q lacks %s", t, placeholderPhrase)
		}
		// without identifiers every product expands to the same query
		if !strings.Contains(t, placeholderIdentifiers) {
			return fmt.Errorf("template %q lacks %s", t, placeholderIdentifiers)
		}
	}
	if file.MaxVariants < 0 {
		return fmt.Errorf("max_variants must not be negative")
	}
	for name, spec := range file.Fields {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("empty field name")
		}
		if len(spec.Phrases) == 0 {
			return fmt.Errorf("field %q has no phrases", name)
		}
	}
	return nil
}
