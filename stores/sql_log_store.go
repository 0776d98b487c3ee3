package stores

import (
	"context"
	"encoding/json"

	"github.com/avrkr/asteriskace"
	"github.com/oarkflow/squealx"
)

// SQLLogStore persists access log entries in SQL
type SQLLogStore struct {
	db *squealx.DB
}

func NewSQLLogStore(db *squealx.DB) (*SQLLogStore, error) {
	return &SQLLogStore{db: db}, nil
}

func (s *SQLLogStore) AppendEntry(ctx context.Context, entry *asteriskace.LogEntry) error {
	detailsB, _ := json.Marshal(entry.Details)
	q := `INSERT INTO access_log(id, timestamp, user_id, action, ip, details_json) VALUES(:id, :timestamp, :user_id, :action, :ip, :details_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           entry.ID,
		"timestamp":    entry.Timestamp,
		"user_id":      entry.UserID,
		"action":       string(entry.Action),
		"ip":           entry.IP,
		"details_json": string(detailsB),
	})
	return err
}

func (s *SQLLogStore) ListEntries(ctx context.Context, filter asteriskace.LogFilter) ([]*asteriskace.LogEntry, error) {
	q := `SELECT id, timestamp, user_id, action, ip, details_json FROM access_log WHERE 1=1`
	params := map[string]any{}
	if filter.UserID != "" {
		q += " AND user_id = :user_id"
		params["user_id"] = filter.UserID
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = string(filter.Action)
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	q += " ORDER BY timestamp, id LIMIT :limit"
	params["limit"] = logQueryLimit(filter)
	rows, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*asteriskace.LogEntry, 0)
	for rows.Next() {
		var id, userID, action, ip, detailsJSON string
		var timestampRaw interface{}
		if err := rows.Scan(&id, &timestampRaw, &userID, &action, &ip, &detailsJSON); err != nil {
			return nil, err
		}
		entry := &asteriskace.LogEntry{
			ID:        id,
			Timestamp: scanTime(timestampRaw),
			UserID:    userID,
			Action:    asteriskace.ActionKind(action),
			IP:        ip,
		}
		if detailsJSON != "" && detailsJSON != "null" {
			_ = json.Unmarshal([]byte(detailsJSON), &entry.Details)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
