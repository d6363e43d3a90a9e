package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daqbridge/internal/services"
)

const catalogYAML = `
tables:
  - name: SEQ2.TABLE
    row_words: 1
    fields:
      - {name: A, bit_low: 0, bit_high: 7}
  - name: SEQ1.TABLE
    row_words: 4
    description: sequencer
    fields:
      - {name: REPEATS, bit_low: 0, bit_high: 15}
      - name: TRIGGER
        bit_low: 16
        bit_high: 19
        kind: enum
        labels: [Immediate, BITA=0, BITA=1]
      - {name: POSITION, bit_low: 32, bit_high: 63, kind: signed}
`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	require.Len(t, catalog.Tables, 2)
	assert.Equal(t, "SEQ1.TABLE", catalog.Tables[0].Name, "tables are sorted by name")

	schema, err := catalog.Tables[0].Schema()
	require.NoError(t, err)
	assert.Equal(t, 4, schema.RowWords())
	trigger, ok := schema.Field("TRIGGER")
	require.True(t, ok)
	assert.Equal(t, KindEnum, trigger.Kind)
	position, _ := schema.Field("POSITION")
	assert.Equal(t, KindSigned, position.Kind)
}

func TestParseCatalogRejects(t *testing.T) {
	cases := map[string]string{
		"yaml":      "tables: [",
		"no name":   "tables:\n  - row_words: 1\n",
		"duplicate": "tables:\n  - {name: T, row_words: 1}\n  - {name: T, row_words: 1}\n",
		"overlap":   "tables:\n  - name: T\n    row_words: 1\n    fields:\n      - {name: A, bit_low: 0, bit_high: 3}\n      - {name: B, bit_low: 2, bit_high: 5}\n",
		"kind":      "tables:\n  - name: T\n    row_words: 1\n    fields:\n      - {name: A, bit_low: 0, bit_high: 3, kind: float}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(data))
			require.Error(t, err)
			assert.ErrorIs(t, err, services.ErrConfiguration)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	missing, err := LoadCatalog(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing.Tables)

	path := filepath.Join(dir, "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))
	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, catalog.Tables, 2)
}
