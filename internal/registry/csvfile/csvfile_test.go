package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
	"github.com/linnemanlabs/lifeline/internal/triage"
)

const sample = `id,name,type,status,eta
R1,Water Tanker 1,water,available,10 min
R2, Ambulance 7 ,Medical,Busy,5 min
R3,Rescue Boat,rescue,available,25 mins
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resources.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, triage.Resource{ID: "R1", Name: "Water Tanker 1", Type: lexicon.Water, Status: triage.StatusAvailable, ETA: "10 min"}, got[0])
	assert.Equal(t, "Ambulance 7", got[1].Name)
	assert.Equal(t, lexicon.Medical, got[1].Type)
	assert.Equal(t, triage.ResourceStatus("busy"), got[1].Status)
	assert.Equal(t, "R3", got[2].ID)
}

func TestParse_ColumnOrderAndCase(t *testing.T) {
	t.Parallel()

	got, err := Parse(strings.NewReader("ETA,Status,Type,Name,ID,zone\n8 min,available,food,Ration Van,F1,north\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, triage.Resource{ID: "F1", Name: "Ration Van", Type: lexicon.Food, Status: triage.StatusAvailable, ETA: "8 min"}, got[0])
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing column", "id,name,type,status\nR1,x,water,available\n"},
		{"ragged row", "id,name,type,status,eta\nR1,x,water\n"},
		{"bad quoting", "id,name,type,status,eta\nR1,\"x,water,available,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	got, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Parse(strings.NewReader("id,name,type,status,eta\n"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCurrentResources_RereadsEveryCall(t *testing.T) {
	t.Parallel()

	path := writeFile(t, sample)
	r := New(path, log.Nop())

	first := r.CurrentResources(context.Background())
	require.Len(t, first, 3)
	assert.Equal(t, triage.StatusAvailable, first[0].Status)

	require.NoError(t, os.WriteFile(path, []byte("id,name,type,status,eta\nR1,Water Tanker 1,water,busy,10 min\n"), 0o600))

	second := r.CurrentResources(context.Background())
	require.Len(t, second, 1)
	assert.Equal(t, triage.ResourceStatus("busy"), second[0].Status)
}

func TestCurrentResources_Unavailable(t *testing.T) {
	t.Parallel()

	missing := New(filepath.Join(t.TempDir(), "nope.csv"), nil)
	assert.Empty(t, missing.CurrentResources(context.Background()))

	broken := New(writeFile(t, "id,name\nR1,x\n"), log.Nop())
	assert.Empty(t, broken.CurrentResources(context.Background()))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	got, err := Load(writeFile(t, sample))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
