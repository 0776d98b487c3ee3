package stores

import (
	"context"
	"time"

	"github.com/avrkr/asteriskace"
	"github.com/oarkflow/squealx"
)

// SQLCatalogStore persists users, domains, topics and content items in SQL
type SQLCatalogStore struct {
	db *squealx.DB
}

func NewSQLCatalogStore(db *squealx.DB) (*SQLCatalogStore, error) {
	return &SQLCatalogStore{db: db}, nil
}

func (s *SQLCatalogStore) CreateUser(ctx context.Context, u *asteriskace.User) error {
	q := `INSERT INTO users(id, email, role, status, last_login) VALUES(:id, :email, :role, :status, :last_login)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"role":       string(u.Role),
		"status":     string(u.Status),
		"last_login": sqlNullTimeOrNil(u.LastLogin),
	})
	return err
}

func (s *SQLCatalogStore) GetUser(ctx context.Context, id string) (*asteriskace.User, error) {
	rows, err := s.db.NamedQueryContext(ctx, `SELECT id, email, role, status, last_login FROM users WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, asteriskace.ErrUserNotFound
	}
	return scanUser(rows)
}

func (s *SQLCatalogStore) ListUsers(ctx context.Context) ([]*asteriskace.User, error) {
	rows, err := s.db.NamedQueryContext(ctx, `SELECT id, email, role, status, last_login FROM users ORDER BY id`, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*asteriskace.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (*asteriskace.User, error) {
	var id, email, role, status string
	var lastLoginRaw interface{}
	if err := r.Scan(&id, &email, &role, &status, &lastLoginRaw); err != nil {
		return nil, err
	}
	return &asteriskace.User{
		ID:        id,
		Email:     email,
		Role:      asteriskace.UserRole(role),
		Status:    asteriskace.UserStatus(status),
		LastLogin: scanTime(lastLoginRaw),
	}, nil
}

func (s *SQLCatalogStore) UpdateUserStatus(ctx context.Context, id string, status asteriskace.UserStatus) error {
	res, err := s.db.NamedExecContext(ctx, `UPDATE users SET status = :status WHERE id = :id`, map[string]any{
		"id":     id,
		"status": string(status),
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return asteriskace.ErrUserNotFound
	}
	return nil
}

func (s *SQLCatalogStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.NamedExecContext(ctx, `UPDATE users SET last_login = :at WHERE id = :id`, map[string]any{
		"id": id,
		"at": at,
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return asteriskace.ErrUserNotFound
	}
	return nil
}

func (s *SQLCatalogStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	res, err := s.db.NamedExecContext(ctx, `DELETE FROM users WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLCatalogStore) CreateDomain(ctx context.Context, d *asteriskace.Domain) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO domains(id, name) VALUES(:id, :name)`, map[string]any{
		"id":   d.ID,
		"name": d.Name,
	})
	return err
}

func (s *SQLCatalogStore) ListDomains(ctx context.Context) ([]*asteriskace.Domain, error) {
	rows, err := s.db.NamedQueryContext(ctx, `SELECT id, name FROM domains ORDER BY id`, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*asteriskace.Domain, 0)
	for rows.Next() {
		d := &asteriskace.Domain{}
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLCatalogStore) CreateTopic(ctx context.Context, t *asteriskace.Topic) error {
	q := `INSERT INTO topics(id, domain_id, name) VALUES(:id, :domain_id, :name)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":        t.ID,
		"domain_id": t.DomainID,
		"name":      t.Name,
	})
	return err
}

func (s *SQLCatalogStore) GetTopic(ctx context.Context, id string) (*asteriskace.Topic, error) {
	rows, err := s.db.NamedQueryContext(ctx, `SELECT id, domain_id, name FROM topics WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, asteriskace.ErrTopicNotFound
	}
	t := &asteriskace.Topic{}
	if err := rows.Scan(&t.ID, &t.DomainID, &t.Name); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLCatalogStore) ListTopicsByDomain(ctx context.Context, domainID string) ([]*asteriskace.Topic, error) {
	rows, err := s.db.NamedQueryContext(ctx, `SELECT id, domain_id, name FROM topics WHERE domain_id = :domain_id ORDER BY id`, map[string]any{"domain_id": domainID})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*asteriskace.Topic, 0)
	for rows.Next() {
		t := &asteriskace.Topic{}
		if err := rows.Scan(&t.ID, &t.DomainID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLCatalogStore) CreateContentItem(ctx context.Context, item *asteriskace.ContentItem) error {
	q := `INSERT INTO content_items(id, domain_id, topic_id, title, lesson_year, lesson_month, lesson_day, size, storage_key, created_at) VALUES(:id, :domain_id, :topic_id, :title, :lesson_year, :lesson_month, :lesson_day, :size, :storage_key, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           item.ID,
		"domain_id":    item.DomainID,
		"topic_id":     item.TopicID,
		"title":        item.Title,
		"lesson_year":  item.Date.Year,
		"lesson_month": item.Date.Month,
		"lesson_day":   item.Date.Day,
		"size":         item.Size,
		"storage_key":  item.StorageKey,
		"created_at":   sqlNullTimeOrNil(item.CreatedAt),
	})
	return err
}

const contentColumns = `id, domain_id, topic_id, title, lesson_year, lesson_month, lesson_day, size, storage_key, created_at`

func (s *SQLCatalogStore) GetContentItem(ctx context.Context, id string) (*asteriskace.ContentItem, error) {
	rows, err := s.db.NamedQueryContext(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, asteriskace.ErrItemNotFound
	}
	return scanContentItem(rows)
}

func (s *SQLCatalogStore) ListContentItems(ctx context.Context) ([]*asteriskace.ContentItem, error) {
	rows, err := s.db.NamedQueryContext(ctx, `SELECT `+contentColumns+` FROM content_items ORDER BY created_at, id`, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*asteriskace.ContentItem, 0)
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanContentItem(r rowScanner) (*asteriskace.ContentItem, error) {
	var id, domainID, topicID, title string
	var year, month, day int
	var size int64
	var storageKey *string
	var createdRaw interface{}
	if err := r.Scan(&id, &domainID, &topicID, &title, &year, &month, &day, &size, &storageKey, &createdRaw); err != nil {
		return nil, err
	}
	item := &asteriskace.ContentItem{
		ID:        id,
		DomainID:  domainID,
		TopicID:   topicID,
		Title:     title,
		Date:      asteriskace.LessonDate{Year: year, Month: month, Day: day},
		Size:      size,
		CreatedAt: scanTime(createdRaw),
	}
	if storageKey != nil {
		item.StorageKey = *storageKey
	}
	return item, nil
}

func (s *SQLCatalogStore) DeleteContentItem(ctx context.Context, id string) (bool, error) {
	res, err := s.db.NamedExecContext(ctx, `DELETE FROM content_items WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
