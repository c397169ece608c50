package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"time"

	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/pass"
)

// FileName is the attachment name offered to the browser.
const FileName = "passes.csv"

// Header is the fixed column set of every export.
var Header = []string{"Student Name", "Destination", "Time Out", "Time In", "Total Duration"}

// NA marks fields that do not exist yet for an open pass.
const NA = "N/A"

// Passes serializes rows to RFC 4180 CSV text. Output is deterministic:
// the same rows in the same order produce byte-identical text. Open
// passes get the N/A sentinel for time in and duration; a stored row
// with time in before time out renders "Invalid" instead of a clamped
// value.
func Passes(rows []models.Pass) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return "", err
	}
	for _, p := range rows {
		if err := w.Write(record(p)); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func record(p models.Pass) []string {
	timeIn := NA
	total := NA
	if p.TimeIn != nil {
		timeIn = p.TimeIn.UTC().Format(time.RFC3339)
		// Finalized mode: the end of the interval is the recorded time
		// in, never "now".
		d, err := pass.Between(p.TimeOut, p.TimeIn, *p.TimeIn)
		if errors.Is(err, pass.ErrInvalidInterval) {
			total = "Invalid"
		} else {
			total = d.String()
		}
	}

	return []string{
		p.StudentName,
		p.Destination,
		p.TimeOut.UTC().Format(time.RFC3339),
		timeIn,
		total,
	}
}
