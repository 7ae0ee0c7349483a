package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	lx := Default()

	needs := lx.Needs()
	require.Len(t, needs, 5)
	assert.Equal(t, Water, needs[0].Category)
	assert.Equal(t, []string{"water", "drinking"}, needs[0].Triggers)
	assert.Equal(t, Shelter, needs[4].Category)

	rules := lx.Urgency()
	require.Len(t, rules, 12)
	assert.Equal(t, UrgencyRule{Keyword: "children", Weight: 20}, rules[0])
	assert.Equal(t, UrgencyRule{Keyword: "pregnant", Weight: 35}, rules[4])
	assert.Equal(t, UrgencyRule{Keyword: "landslide", Weight: 25}, rules[11])

	assert.Equal(t, 100, lx.ScoreCeiling())
	assert.Equal(t, 30, lx.AlertThreshold())
	assert.Equal(t, []string{"people", "persons", "families"}, lx.PeopleNouns())
}

func TestIsAmbiguous(t *testing.T) {
	t.Parallel()

	lx := Default()

	tests := []struct {
		loc  string
		want bool
	}{
		{"bridge", true},
		{"Bridge", true},
		{"  BUS STAND ", true},
		{"community hall", true},
		{"hall", false},
		{"railway bridge", false},
		{"Kochi", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.loc, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, lx.IsAmbiguous(tt.loc))
		})
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	lx := Default()
	needs := lx.Needs()
	needs[0].Triggers[0] = "mutated"
	rules := lx.Urgency()
	rules[0].Weight = 1000

	assert.Equal(t, "water", lx.Needs()[0].Triggers[0])
	assert.Equal(t, 20, lx.Urgency()[0].Weight)
}

func TestParse_NormalizesAndDefaults(t *testing.T) {
	t.Parallel()

	lx, err := Parse([]byte(`
needs:
  - category: medical
    triggers: ["  Ambulance ", Oxygen]
urgency:
  - {keyword: "Senior Citizen", weight: 10}
`))
	require.NoError(t, err)

	assert.Equal(t, []NeedEntry{{Category: Medical, Triggers: []string{"ambulance", "oxygen"}}}, lx.Needs())
	assert.Equal(t, "Senior Citizen", lx.Urgency()[0].Keyword)
	assert.Equal(t, 100, lx.ScoreCeiling())
	assert.Equal(t, 30, lx.AlertThreshold())
	assert.False(t, lx.IsAmbiguous("bridge"))
}

func TestParse_ZeroCeilingDisablesClamp(t *testing.T) {
	t.Parallel()

	lx, err := Parse([]byte(`
needs:
  - {category: water, triggers: [water]}
urgency: []
score_ceiling: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0, lx.ScoreCeiling())
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"not yaml", "needs: [unterminated"},
		{"missing needs", "urgency: []"},
		{"unknown category", "needs: [{category: fuel, triggers: [petrol]}]\nurgency: []"},
		{"empty triggers", "needs: [{category: water, triggers: []}]\nurgency: []"},
		{"unknown field", "needs: [{category: water, triggers: [water]}]\nurgency: []\nextra: 1"},
		{"zero weight", "needs: [{category: water, triggers: [water]}]\nurgency: [{keyword: fire, weight: 0}]"},
		{"fractional weight", "needs: [{category: water, triggers: [water]}]\nurgency: [{keyword: fire, weight: 2.5}]"},
		{"duplicate category", "needs: [{category: water, triggers: [water]}, {category: water, triggers: [drinking]}]\nurgency: []"},
		{"duplicate keyword", "needs: [{category: water, triggers: [water]}]\nurgency: [{keyword: fire, weight: 1}, {keyword: FIRE, weight: 2}]"},
		{"blank trigger", "needs: [{category: water, triggers: [\"  \"]}]\nurgency: []"},
		{"threshold above ceiling", "needs: [{category: water, triggers: [water]}]\nurgency: []\nscore_ceiling: 20\nalert_threshold: 30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("needs: [{category: food, triggers: [rice]}]\nurgency: [{keyword: flood, weight: 15}]\n"), 0o600))

	lx, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Food, lx.Needs()[0].Category)
	assert.Equal(t, 15, lx.Urgency()[0].Weight)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCategoryValid(t *testing.T) {
	t.Parallel()

	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("fuel").Valid())
	assert.False(t, Category("Water").Valid())
}
