package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

func TestDefaultDomains_Valid(t *testing.T) {
	domains := DefaultDomains()
	if err := ValidateDomains(domains); err != nil {
		t.Fatalf("ValidateDomains(DefaultDomains()) = %v", err)
	}
	names := DomainNames(domains)
	want := []string{"ai", "quant", "web"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("DomainNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	for _, d := range domains {
		if len(d.Targets) != models.SlicesPerTask {
			t.Errorf("domain %q has %d targets, want %d", d.Name, len(d.Targets), models.SlicesPerTask)
		}
		if len(d.Specializations) != models.SlicesPerTask {
			t.Errorf("domain %q has %d specializations", d.Name, len(d.Specializations))
		}
	}
}

func TestValidateDomains(t *testing.T) {
	base := func() models.DomainConfig {
		return models.DomainConfig{Name: "web", Workers: []int{1, 2, 3, 4, 5, 6, 7}}
	}

	tests := []struct {
		name    string
		domains func() []models.DomainConfig
	}{
		{"empty", func() []models.DomainConfig { return nil }},
		{"six workers", func() []models.DomainConfig {
			d := base()
			d.Workers = d.Workers[:6]
			return []models.DomainConfig{d}
		}},
		{"duplicate name", func() []models.DomainConfig {
			a, b := base(), base()
			b.Workers = []int{8, 9, 10, 11, 12, 13, 14}
			return []models.DomainConfig{a, b}
		}},
		{"overlapping pools", func() []models.DomainConfig {
			a, b := base(), base()
			b.Name = "ai"
			b.Workers = []int{7, 8, 9, 10, 11, 12, 13}
			return []models.DomainConfig{a, b}
		}},
		{"repeated worker in pool", func() []models.DomainConfig {
			d := base()
			d.Workers = []int{1, 1, 2, 3, 4, 5, 6}
			return []models.DomainConfig{d}
		}},
		{"specialization out of range", func() []models.DomainConfig {
			d := base()
			d.Specializations = map[int]string{8: "extra"}
			return []models.DomainConfig{d}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomains(tt.domains())
			if !errors.Is(err, errs.ErrConfigInvalid) {
				t.Errorf("ValidateDomains() = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestLoadDomains(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		domains, err := LoadDomains("")
		if err != nil {
			t.Fatalf("LoadDomains() error = %v", err)
		}
		if len(domains) != 3 {
			t.Errorf("len(domains) = %d, want 3", len(domains))
		}
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "domains.yaml")
		content := `
domains:
  - name: infra
    workers: [30, 31, 32, 33, 34, 35, 36]
    can_do: ["write terraform"]
    cannot_do: ["delete state"]
    specializations:
      1: networking
    targets:
      1: infra/network.tf
    shared_targets: ["infra/main.tf"]
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		domains, err := LoadDomains(path)
		if err != nil {
			t.Fatalf("LoadDomains() error = %v", err)
		}
		if len(domains) != 1 {
			t.Fatalf("len(domains) = %d, want 1", len(domains))
		}
		d := domains[0]
		if d.ViolationTolerance != DefaultViolationTolerance {
			t.Errorf("ViolationTolerance = %d, want %d", d.ViolationTolerance, DefaultViolationTolerance)
		}
		if d.Targets[1] != "infra/network.tf" {
			t.Errorf("Targets[1] = %q", d.Targets[1])
		}
		if w, ok := d.WorkerFor(7); !ok || w != 36 {
			t.Errorf("WorkerFor(7) = %d, %v; want 36, true", w, ok)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "domains.yaml")
		if err := os.WriteFile(path, []byte("domains: [unclosed"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadDomains(path); !errors.Is(err, errs.ErrConfigInvalid) {
			t.Errorf("LoadDomains() = %v, want ErrConfigInvalid", err)
		}
	})
}
