package history

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// WriteTimelineCSV serialises timeline rows to a CSV document.
func WriteTimelineCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"At", "Actor ID", "Action", "Entity Type", "Entity ID", "Reason"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			row.Action,
			row.EntityType,
			strconv.FormatInt(row.EntityID, 10),
			row.Reason,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
