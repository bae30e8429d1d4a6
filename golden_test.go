package symcache

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test format.
type goldenFile struct {
	Symbols    []goldenSymbol   `json:"symbols,omitempty"`
	Absent     []string         `json:"absent,omitempty"`
	Fragments  []goldenFragment `json:"fragments,omitempty"`
	Duplicates int              `json:"duplicates,omitempty"`
}

type goldenSymbol struct {
	DocID string `json:"doc_id"`
	Kind  string `json:"kind"`
	Unit  string `json:"unit"`
	File  string `json:"file"`
}

type goldenFragment struct {
	DocID    string `json:"doc_id"`
	BodyOnly bool   `json:"body_only"`
	Text     string `json:"text"`
}

// TestGolden walks testdata/csharp/ and checks each workspace under src/
// against its golden.json.
func TestGolden(t *testing.T) {
	root := filepath.Join("testdata", "csharp")
	levels, err := os.ReadDir(root)
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, level := range levels {
		if !level.IsDir() {
			continue
		}
		testDir := filepath.Join(root, level.Name())
		goldenPath := filepath.Join(testDir, "golden.json")
		srcDir := filepath.Join(testDir, "src")
		if _, err := os.Stat(goldenPath); err != nil {
			continue
		}

		t.Run(level.Name(), func(t *testing.T) {
			t.Parallel()
			runGoldenTest(t, srcDir, goldenPath)
		})
	}
}

func runGoldenTest(t *testing.T, srcDir, goldenPath string) {
	t.Helper()

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(data, &golden))

	ws, err := OpenDir(srcDir)
	require.NoError(t, err)
	c, err := New(ws, nil, WithTempDir(t.TempDir()), WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	syms, err := c.Symbols(ctx)
	require.NoError(t, err)
	actual := make(map[string]goldenSymbol, len(syms))
	for _, s := range syms {
		actual[s.DocID] = goldenSymbol{DocID: s.DocID, Kind: string(s.Kind), Unit: s.Unit, File: filepath.Base(s.File)}
	}

	t.Run("symbols", func(t *testing.T) {
		for _, exp := range golden.Symbols {
			got, ok := actual[exp.DocID]
			if assert.True(t, ok, "missing symbol: %s", exp.DocID) {
				assert.Equal(t, exp, got)
			}
		}
		for _, id := range golden.Absent {
			assert.NotContains(t, actual, id)
		}
	})

	t.Run("fragments", func(t *testing.T) {
		for _, exp := range golden.Fragments {
			text, err := c.Fragment(ctx, exp.DocID, exp.BodyOnly)
			if assert.NoError(t, err, exp.DocID) {
				assert.Equal(t, exp.Text, text, "%s body_only=%v", exp.DocID, exp.BodyOnly)
			}
		}
	})

	assert.Equal(t, golden.Duplicates, c.Stats().Duplicates)
}
