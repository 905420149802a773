package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

func TestIsSimilar(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name        string
		candName    string
		candSection string
		exName      string
		exSection   string
		want        bool
	}{
		{
			name:     "exact name same section",
			candName: "Furto e incendio", candSection: "DANNI",
			exName: "furto e incendio", exSection: "danni",
			want: true,
		},
		{
			name:     "exact name different section",
			candName: "Furto", candSection: "DANNI",
			exName: "Furto", exSection: "CASA",
			want: false,
		},
		{
			name:     "two shared keywords same section",
			candName: "Rimborso spese mediche", candSection: "SALUTE",
			exName: "Spese mediche da ricovero", exSection: "SALUTE",
			want: true,
		},
		{
			name:     "two shared keywords different section",
			candName: "Rimborso spese mediche", candSection: "SALUTE",
			exName: "Spese mediche da ricovero", exSection: "INFORTUNI",
			want: false,
		},
		{
			name:     "single shared keyword",
			candName: "Furto con scasso", candSection: "DANNI",
			exName: "Furto del veicolo", exSection: "DANNI",
			want: false,
		},
		{
			name:     "candidate has one keyword only",
			candName: "Copertura furto", candSection: "DANNI",
			exName: "Furto e incendio abitazione", exSection: "DANNI",
			want: false,
		},
		{
			name:     "no keywords at all",
			candName: "Eventi atmosferici", candSection: "DANNI",
			exName: "Grandine", exSection: "DANNI",
			want: false,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := IsSimilar(tc.candName, tc.candSection, tc.exName, tc.exSection)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMarkDuplicates(t *testing.T) {
	t.Parallel()
	candidates := []domain.GeneratedGuarantee{
		{Name: "Furto e incendio", Section: "DANNI"},
		{Name: "Tutela legale circolazione", Section: "LEGALE"},
		{Name: "Assistenza stradale", Section: "SERVIZI"},
	}
	existing := []domain.ExistingGuaranteeEntry{
		{Name: "furto e incendio", Section: "danni"},
		{Name: "Tutela legale auto", Section: "LEGALE"},
	}

	matched, fresh := MarkDuplicates(candidates, existing)

	assert.Equal(t, []string{"danni/furto e incendio", "LEGALE/Tutela legale auto"}, matched)
	assert.Equal(t, []string{"Assistenza stradale"}, fresh)

	assert.True(t, candidates[0].IsDuplicate)
	assert.False(t, candidates[0].IsNew)
	assert.True(t, candidates[1].IsDuplicate)
	assert.True(t, candidates[2].IsNew)
	assert.False(t, candidates[2].IsDuplicate)
}
