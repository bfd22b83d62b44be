package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

// DefaultViolationTolerance is the per-task violation total above which a
// domain escalates to the commander.
const DefaultViolationTolerance = 3

// domainsFile is the on-disk layout of a domains YAML file.
type domainsFile struct {
	Domains []models.DomainConfig `yaml:"domains"`
}

// LoadDomains reads domain definitions from a YAML file.
// An empty path returns DefaultDomains.
func LoadDomains(path string) ([]models.DomainConfig, error) {
	if path == "" {
		return DefaultDomains(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domains file: %w", err)
	}

	var f domainsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse domains file %s: %v: %w", path, err, errs.ErrConfigInvalid)
	}

	for i := range f.Domains {
		if f.Domains[i].ViolationTolerance <= 0 {
			f.Domains[i].ViolationTolerance = DefaultViolationTolerance
		}
	}

	if err := ValidateDomains(f.Domains); err != nil {
		return nil, err
	}
	return f.Domains, nil
}

// ValidateDomains checks that every domain has a pool of exactly seven
// distinct workers and that no worker belongs to two pools.
func ValidateDomains(domains []models.DomainConfig) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains defined: %w", errs.ErrConfigInvalid)
	}

	names := make(map[string]bool, len(domains))
	owner := make(map[int]string)
	for _, d := range domains {
		if d.Name == "" {
			return fmt.Errorf("domain with empty name: %w", errs.ErrConfigInvalid)
		}
		if names[d.Name] {
			return fmt.Errorf("duplicate domain %q: %w", d.Name, errs.ErrConfigInvalid)
		}
		names[d.Name] = true

		if len(d.Workers) != models.SlicesPerTask {
			return fmt.Errorf("domain %q has %d workers, want %d: %w",
				d.Name, len(d.Workers), models.SlicesPerTask, errs.ErrConfigInvalid)
		}
		for _, w := range d.Workers {
			if w <= 0 {
				return fmt.Errorf("domain %q: invalid worker ordinal %d: %w", d.Name, w, errs.ErrConfigInvalid)
			}
			if prev, ok := owner[w]; ok {
				return fmt.Errorf("worker %d assigned to both %q and %q: %w", w, prev, d.Name, errs.ErrConfigInvalid)
			}
			owner[w] = d.Name
		}
		for k := range d.Specializations {
			if k < 1 || k > models.SlicesPerTask {
				return fmt.Errorf("domain %q: specialization key %d out of range: %w", d.Name, k, errs.ErrConfigInvalid)
			}
		}
		for k := range d.Targets {
			if k < 1 || k > models.SlicesPerTask {
				return fmt.Errorf("domain %q: target key %d out of range: %w", d.Name, k, errs.ErrConfigInvalid)
			}
		}
	}
	return nil
}

// DomainNames returns the sorted domain names.
func DomainNames(domains []models.DomainConfig) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		out = append(out, d.Name)
	}
	sort.Strings(out)
	return out
}

// DefaultDomains returns the built-in web, ai, and quant domains.
func DefaultDomains() []models.DomainConfig {
	return []models.DomainConfig{
		{
			Name:        "web",
			Description: "frontend components in React and TypeScript",
			Workers:     []int{1, 2, 3, 4, 5, 6, 7},
			CanDo: []string{
				"create assigned file",
				"import from designated modules",
				"use Tailwind classes",
				"use shadcn components",
				"use React hooks",
				"define TypeScript types",
			},
			CannotDo: []string{
				"modify files outside assignment",
				"create routes",
				"fetch data directly",
				"modify global state",
				"install packages",
				"use inline styles",
			},
			Specializations: map[int]string{
				1: "layout and shell structure",
				2: "navigation and header components",
				3: "core components (cards, tables)",
				4: "form components (inputs, modals)",
				5: "charts and data visualization",
				6: "styles and theme tokens",
				7: "types, utilities, and hooks",
			},
			Targets: map[int]string{
				1: "src/components/layout/Shell.tsx",
				2: "src/components/nav/Header.tsx",
				3: "src/components/core/Card.tsx",
				4: "src/components/forms/Form.tsx",
				5: "src/components/charts/Chart.tsx",
				6: "src/styles/theme.ts",
				7: "src/lib/utils.ts",
			},
			SharedTargets:      []string{"src/components/index.ts"},
			ViolationTolerance: DefaultViolationTolerance,
			Keywords: []string{
				"ui", "frontend", "component", "react", "page", "layout",
				"css", "tailwind", "dashboard", "form", "button", "navbar",
			},
		},
		{
			Name:        "ai",
			Description: "retrieval and LLM pipelines in Python",
			Workers:     []int{8, 9, 10, 11, 12, 13, 14},
			CanDo: []string{
				"create assigned file",
				"import from project packages",
				"define Pydantic models",
				"use async patterns",
				"call configured LLM clients",
				"access vector stores",
			},
			CannotDo: []string{
				"modify files outside assignment",
				"hardcode API keys",
				"make external calls in module body",
				"create database migrations",
				"modify configuration files",
			},
			Specializations: map[int]string{
				1: "data loaders and chunking",
				2: "embeddings and vector operations",
				3: "retrieval and reranking",
				4: "LLM clients and prompts",
				5: "pipeline orchestration",
				6: "API routes and handlers",
				7: "types, schemas, and tests",
			},
			Targets: map[int]string{
				1: "app/loaders.py",
				2: "app/embeddings.py",
				3: "app/retrieval.py",
				4: "app/llm.py",
				5: "app/pipeline.py",
				6: "app/routes.py",
				7: "app/schemas.py",
			},
			SharedTargets:      []string{"app/__init__.py"},
			ViolationTolerance: DefaultViolationTolerance,
			Keywords: []string{
				"llm", "rag", "embedding", "vector", "retrieval", "prompt",
				"agent", "model", "chatbot", "pipeline", "inference",
			},
		},
		{
			Name:        "quant",
			Description: "trading systems and market data in Python",
			Workers:     []int{15, 16, 17, 18, 19, 20, 21},
			CanDo: []string{
				"create assigned file",
				"import from project libraries",
				"define dataclasses",
				"use async websocket patterns",
				"access configured exchange clients",
				"use numpy and pandas",
			},
			CannotDo: []string{
				"modify files outside assignment",
				"hardcode private keys",
				"execute real trades in module body",
				"modify configuration files",
				"bypass risk checks",
				"disable logging",
			},
			Specializations: map[int]string{
				1: "data feeds and websockets",
				2: "indicators and signals",
				3: "position sizing and risk",
				4: "order execution",
				5: "portfolio state tracking",
				6: "backtesting harnesses",
				7: "types, config, and utilities",
			},
			Targets: map[int]string{
				1: "quant/feeds.py",
				2: "quant/signals.py",
				3: "quant/risk.py",
				4: "quant/execution.py",
				5: "quant/portfolio.py",
				6: "quant/backtest.py",
				7: "quant/types.py",
			},
			SharedTargets:      []string{"quant/__init__.py"},
			ViolationTolerance: DefaultViolationTolerance,
			Keywords: []string{
				"trading", "market", "order", "portfolio", "backtest", "risk",
				"signal", "exchange", "price", "strategy", "crypto",
			},
		},
	}
}
