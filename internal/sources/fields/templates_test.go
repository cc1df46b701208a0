package fields

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

func TestQueries_Defaults(t *testing.T) {
	ids := domain.Identifiers{ProductName: "ethanol", CASNumber: "64-17-5"}

	qs := Defaults().Queries(domain.FieldUNNumber, ids)
	if len(qs) != DefaultMaxVariants {
		t.Fatalf("expected %d variants, got %d: %v", DefaultMaxVariants, len(qs), qs)
	}
	if qs[0] != "ethanol CAS 64-17-5 UN number safety data sheet" {
		t.Errorf("unexpected primary query %q", qs[0])
	}
	if qs[1] != "ethanol CAS 64-17-5 UN number SDS" {
		t.Errorf("unexpected second query %q", qs[1])
	}
}

func TestQueries_UnknownField(t *testing.T) {
	qs := Defaults().Queries("flash_point", domain.Identifiers{ProductName: "acetone"})
	if len(qs) == 0 || qs[0] != "acetone flash point safety data sheet" {
		t.Errorf("unexpected queries %v", qs)
	}
}

func TestMerge(t *testing.T) {
	file := TemplatesFile{
		Templates:   []string{"{identifiers} {phrase}", "{phrase} {identifiers}"},
		MaxVariants: 2,
		Fields: map[string]FieldSpec{
			"numero_onu": {Phrases: []string{"número ONU"}},
		},
	}
	set := Defaults().Merge(file)

	qs := set.Queries(domain.FieldUNNumber, domain.Identifiers{ProductName: "ethanol"})
	want := []string{"ethanol número ONU", "número ONU ethanol"}
	if strings.Join(qs, "|") != strings.Join(want, "|") {
		t.Errorf("got %v, want %v", qs, want)
	}

	// defaults untouched
	if got := Defaults().Phrases(domain.FieldUNNumber)[0]; got != "UN number" {
		t.Errorf("defaults mutated: %q", got)
	}
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fields.yaml")
	t.Setenv("SDS_TEST_SUFFIX", "msds")

	content := `templates:
  - "{identifiers} {phrase} ${SDS_TEST_SUFFIX}"
fields:
  cas_number:
    phrases: ["CAS RN"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	file, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	reg := NewRegistry()
	reg.Apply(file)
	qs := reg.Current().Queries(domain.FieldCASNumber, domain.Identifiers{ProductName: "ethanol"})
	if len(qs) != 1 || qs[0] != "ethanol CAS RN msds" {
		t.Errorf("unexpected queries %v", qs)
	}
	if reg.LastReload().IsZero() {
		t.Error("expected reload timestamp")
	}
}

func TestLoader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "fields: [unclosed"},
		{"template without phrase", `templates: ["{identifiers} sds"]`},
		{"template without identifiers", `templates: ["{phrase} msds"]`},
		{"field without phrases", "fields:\n  un_number:\n    phrases: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fields.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewLoader(path).Load(); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load(); err == nil {
		t.Error("expected error for missing file")
	}
}
