package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// WriteCSV writes a header line of columns followed by one line per row.
// Cells follow the column order; a row missing a column gets an empty cell.
func WriteCSV(w io.Writer, result *domain.ExtractionResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(result.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(result.Columns))
	for i, row := range result.Rows {
		for j, col := range result.Columns {
			record[j] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
