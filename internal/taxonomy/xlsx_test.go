package taxonomy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeWorkbook(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, cells := range rows {
			row := sheet.AddRow()
			for _, v := range cells {
				row.AddCell().Value = v
			}
		}
	}
	path := filepath.Join(t.TempDir(), "vocab.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestImportXLSX(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"discipline": {
			{"id", "name", "category"},
			{"D07", "Physical Security", "physical"},
			{"D06", " Perimeter Security ", "physical"},
		},
		"sector": {
			{"id", "name"},
			{"S03", "Government Facilities"},
			{"", "missing id row"},
		},
	})

	terms, err := ImportXLSX(path)
	require.NoError(t, err)

	require.Len(t, terms[VocabDiscipline], 2)
	assert.Equal(t, Term{ID: "D07", Name: "Physical Security", Category: "physical"}, terms[VocabDiscipline][0])
	// Cell whitespace is trimmed.
	assert.Equal(t, "Perimeter Security", terms[VocabDiscipline][1].Name)

	// Rows with a blank id or name are skipped; category is discipline-only.
	require.Len(t, terms[VocabSector], 1)
	assert.Equal(t, Term{ID: "S03", Name: "Government Facilities"}, terms[VocabSector][0])

	// No subsector sheet, no subsector terms.
	assert.NotContains(t, terms, VocabSubsector)
}

func TestImportXLSX_NoVocabularySheets(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"unrelated": {{"a", "b"}},
	})

	_, err := ImportXLSX(path)
	assert.Error(t, err)
}

func TestImportXLSX_MissingFile(t *testing.T) {
	_, err := ImportXLSX(filepath.Join(t.TempDir(), "nope.xlsx"))
	assert.Error(t, err)
}
