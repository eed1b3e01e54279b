package event

import (
	"encoding/json"
	"fmt"

	"nodesale/internal/storage"
)

// Record appends evt to the event log of the transaction behind repo.
func Record(repo *storage.Repository, evt Event) error {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt, err)
	}
	return repo.AppendEvent(&storage.EventRecord{
		ID:        evt.ID,
		Type:      string(evt.Type),
		PhaseName: evt.Phase,
		Payload:   string(payload),
		CreatedAt: evt.Timestamp,
	})
}

// FromRecord rebuilds a logged event. Data holds the raw JSON payload.
func FromRecord(record *storage.EventRecord) Event {
	return Event{
		ID:        record.ID,
		Type:      EventType(record.Type),
		Phase:     record.PhaseName,
		Timestamp: record.CreatedAt,
		Data:      json.RawMessage(record.Payload),
	}
}
