package analyzer

import (
	"strings"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// similarityKeywords is the fixed Italian insurance vocabulary used by the
// duplicate heuristic. Hand-picked; changing it is a product decision.
var similarityKeywords = []string{
	"rc", "responsabilità", "civile", "danni", "furto", "incendio",
	"infortuni", "tutela", "legale", "assistenza", "invalidità", "morte",
	"rimborso", "spese", "mediche", "professionale",
}

// IsSimilar reports whether a candidate guarantee duplicates an existing
// catalog entry. Exact normalized name plus equal section always matches;
// otherwise names are only compared within the same section, via keyword
// overlap: both names must contain at least two vocabulary keywords and
// share at least two of them.
func IsSimilar(candidateName, candidateSection, existingName, existingSection string) bool {
	candName := normalizeName(candidateName)
	exName := normalizeName(existingName)
	sameSection := normalizeName(candidateSection) == normalizeName(existingSection)

	if candName == exName && sameSection {
		return true
	}
	if !sameSection {
		return false
	}

	candKw := keywordsIn(candName)
	exKw := keywordsIn(exName)
	if len(candKw) < 2 || len(exKw) < 2 {
		return false
	}
	shared := 0
	for kw := range candKw {
		if exKw[kw] {
			shared++
		}
	}
	return shared >= 2
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func keywordsIn(normalizedName string) map[string]bool {
	found := make(map[string]bool)
	for _, kw := range similarityKeywords {
		if strings.Contains(normalizedName, kw) {
			found[kw] = true
		}
	}
	return found
}

// MarkDuplicates flags each candidate against the catalog snapshot, setting
// IsDuplicate/IsNew in place. It returns the matched existing-entry labels
// and the genuinely new candidate names, for reporting only: the persistence
// layer decides final storage policy.
func MarkDuplicates(candidates []domain.GeneratedGuarantee, existing []domain.ExistingGuaranteeEntry) (matched []string, fresh []string) {
	matched = []string{}
	fresh = []string{}
	for i := range candidates {
		c := &candidates[i]
		c.IsDuplicate = false
		for _, e := range existing {
			if IsSimilar(c.Name, c.Section, e.Name, e.Section) {
				c.IsDuplicate = true
				matched = append(matched, e.Section+"/"+e.Name)
				break
			}
		}
		c.IsNew = !c.IsDuplicate
		if c.IsNew {
			fresh = append(fresh, c.Name)
		}
	}
	return matched, fresh
}
