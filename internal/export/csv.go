package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/Priya8975/traffic-tracker/internal/domain"
)

// WriteCSV writes a header row of CSVColumns followed by one row per event.
func WriteCSV(w io.Writer, events []domain.Event) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVColumns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	row := make([]string, len(CSVColumns))
	for _, e := range events {
		for i, col := range CSVColumns {
			row[i] = field(e, col)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for event %d: %w", e.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
