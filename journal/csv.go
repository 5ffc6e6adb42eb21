package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteActionResultsCSV streams audit rows to w as CSV with a header line.
// The payload column carries the raw JSON trace so the export stays
// self-describing.
func WriteActionResultsCSV(w io.Writer, results []ActionResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"id", "recommendation_id", "action_type", "success", "message", "payload", "created_at"}); err != nil {
		return err
	}

	for _, r := range results {
		if err := cw.Write([]string{
			r.ID,
			r.RecommendationID,
			r.ActionType,
			strconv.FormatBool(r.Success),
			r.Message,
			r.Payload,
			r.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
