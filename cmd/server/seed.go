package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

type catalogYAML struct {
	InsuranceType string             `yaml:"insurance_type"`
	Guarantees    []catalogYAMLEntry `yaml:"guarantees"`
}

type catalogYAMLEntry struct {
	InsuranceType string `yaml:"insurance_type"`
	Section       string `yaml:"section"`
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
}

// seedCatalogFromYAML loads the guarantee catalog from a YAML file and
// upserts every entry. Two shapes are accepted: a document with a top-level
// insurance_type and a guarantees list, or a bare list of entries each
// carrying its own insurance_type. Returns the number of rows actually
// inserted; exact duplicates already in the catalog are skipped.
func seedCatalogFromYAML(ctx context.Context, repo domain.GuaranteeRepository, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("seed file not found: %s", path)
		}
		return 0, err
	}

	var doc catalogYAML
	entries := make([]catalogYAMLEntry, 0)
	if err := yaml.Unmarshal(b, &doc); err == nil && len(doc.Guarantees) > 0 {
		for _, e := range doc.Guarantees {
			if e.InsuranceType == "" {
				e.InsuranceType = doc.InsuranceType
			}
			entries = append(entries, e)
		}
	} else {
		var ls []catalogYAMLEntry
		if err := yaml.Unmarshal(b, &ls); err != nil {
			return 0, fmt.Errorf("yaml parse: %w", err)
		}
		entries = append(entries, ls...)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("no guarantees to seed in %s", path)
	}

	inserted := 0
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		insType := strings.TrimSpace(e.InsuranceType)
		if title == "" || insType == "" {
			return inserted, fmt.Errorf("seed entry missing title or insurance_type (title=%q)", e.Title)
		}
		ok, err := repo.Upsert(ctx, domain.Guarantee{
			InsuranceType: insType,
			Section:       strings.TrimSpace(e.Section),
			Title:         title,
			Description:   strings.TrimSpace(e.Description),
		})
		if err != nil {
			return inserted, fmt.Errorf("seed upsert %q: %w", title, err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}
