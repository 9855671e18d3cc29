package taxonomy

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ImportXLSX loads vocabularies from a workbook with one sheet per
// vocabulary ("discipline", "sector", "subsector"), columns id, name,
// category (category read for discipline only). The first row is treated
// as a header. Missing sheets are simply absent from the result.
func ImportXLSX(path string) (map[Vocabulary][]Term, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: open workbook %s", path)
	}

	out := make(map[Vocabulary][]Term)
	for _, vocab := range Vocabularies() {
		sheet, ok := f.Sheet[string(vocab)]
		if !ok {
			continue
		}

		var terms []Term
		for i, row := range sheet.Rows {
			if i == 0 {
				continue // header
			}
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = strings.TrimSpace(cell.String())
			}
			if len(cells) < 2 || cells[0] == "" || cells[1] == "" {
				continue
			}
			t := Term{ID: cells[0], Name: cells[1]}
			if vocab == VocabDiscipline && len(cells) > 2 {
				t.Category = cells[2]
			}
			terms = append(terms, t)
		}
		out[vocab] = terms
	}

	if len(out) == 0 {
		return nil, eris.Errorf("taxonomy: workbook %s contains no vocabulary sheets", path)
	}
	return out, nil
}
