package stores

import (
	"context"

	"github.com/avrkr/asteriskace"
	"github.com/oarkflow/squealx"
)

// SQLRuleStore persists access rules in SQL. Filter wildcards are stored
// as an explicit flag column so a NULL id is never ambiguous.
type SQLRuleStore struct {
	db *squealx.DB
}

func NewSQLRuleStore(db *squealx.DB) (*SQLRuleStore, error) {
	return &SQLRuleStore{db: db}, nil
}

const ruleColumns = `id, user_id, domain_any, domain_id, topic_any, topic_id, date_year, date_month, date_day, expires_at, created_at, created_by`

func (s *SQLRuleStore) CreateRule(ctx context.Context, r *asteriskace.AccessRule) error {
	q := `INSERT INTO access_rules(` + ruleColumns + `) VALUES(:id, :user_id, :domain_any, :domain_id, :topic_any, :topic_id, :date_year, :date_month, :date_day, :expires_at, :created_at, :created_by)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         r.ID,
		"user_id":    r.UserID,
		"domain_any": boolToInt(r.Domain.IsAny()),
		"domain_id":  r.Domain.ID,
		"topic_any":  boolToInt(r.Topic.IsAny()),
		"topic_id":   r.Topic.ID,
		"date_year":  sqlNullIntOrNil(r.Date.Year),
		"date_month": sqlNullIntOrNil(r.Date.Month),
		"date_day":   sqlNullIntOrNil(r.Date.Day),
		"expires_at": r.ExpiresAt,
		"created_at": sqlNullTimeOrNil(r.CreatedAt),
		"created_by": r.CreatedBy,
	})
	return err
}

func (s *SQLRuleStore) ListRulesByUser(ctx context.Context, userID string) ([]*asteriskace.AccessRule, error) {
	q := `SELECT ` + ruleColumns + ` FROM access_rules WHERE user_id = :user_id ORDER BY created_at, id`
	return s.queryRules(ctx, q, map[string]any{"user_id": userID})
}

func (s *SQLRuleStore) DeleteRule(ctx context.Context, id string) (bool, error) {
	res, err := s.db.NamedExecContext(ctx, `DELETE FROM access_rules WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLRuleStore) ListAllRules(ctx context.Context) ([]*asteriskace.AccessRule, error) {
	q := `SELECT ` + ruleColumns + ` FROM access_rules ORDER BY created_at, id`
	return s.queryRules(ctx, q, map[string]any{})
}

func (s *SQLRuleStore) queryRules(ctx context.Context, q string, params map[string]any) ([]*asteriskace.AccessRule, error) {
	rows, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*asteriskace.AccessRule, 0)
	for rows.Next() {
		var id, userID, createdBy string
		var domainAny, topicAny int
		var domainID, topicID *string
		var year, month, day *int
		var expiresRaw, createdRaw interface{}
		if err := rows.Scan(&id, &userID, &domainAny, &domainID, &topicAny, &topicID, &year, &month, &day, &expiresRaw, &createdRaw, &createdBy); err != nil {
			return nil, err
		}
		r := &asteriskace.AccessRule{
			ID:        id,
			UserID:    userID,
			Date:      asteriskace.DateFilter{Year: year, Month: month, Day: day},
			ExpiresAt: scanTime(expiresRaw),
			CreatedAt: scanTime(createdRaw),
			CreatedBy: createdBy,
		}
		if domainAny != 0 {
			r.Domain = asteriskace.AnyFilter()
		} else if domainID != nil {
			r.Domain = asteriskace.ExactFilter(*domainID)
		}
		if topicAny != 0 {
			r.Topic = asteriskace.AnyFilter()
		} else if topicID != nil {
			r.Topic = asteriskace.ExactFilter(*topicID)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
