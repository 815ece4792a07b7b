package export

import (
	"bytes"
	"encoding/csv"
)

// renderCSV writes the plain table: header row then data rows. CSV is
// the one format without a summary block.
func renderCSV(table Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Headers); err != nil {
		return nil, err
	}
	for _, cells := range table.Rows {
		if err := w.Write(cells); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
