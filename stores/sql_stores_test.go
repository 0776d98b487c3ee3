package stores

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/avrkr/asteriskace"
	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLRuleStoreRoundtrip(t *testing.T) {
	db := openTestDB(t)
	store, _ := NewSQLRuleStore(db)
	ctx := context.Background()

	year := 2026
	rule := &asteriskace.AccessRule{
		ID:        "rule-1",
		UserID:    "user-x",
		Domain:    asteriskace.ExactFilter("math"),
		Topic:     asteriskace.AnyFilter(),
		Date:      asteriskace.DateFilter{Year: &year},
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour).UTC(),
		CreatedAt: time.Now().UTC(),
		CreatedBy: "admin-1",
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	rules, err := store.ListRulesByUser(ctx, "user-x")
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	got := rules[0]
	if got.Domain.ID != "math" || got.Domain.IsAny() {
		t.Fatalf("domain filter mismatch: %+v", got.Domain)
	}
	if !got.Topic.IsAny() {
		t.Fatalf("topic filter should be wildcard: %+v", got.Topic)
	}
	if got.Date.Year == nil || *got.Date.Year != 2026 {
		t.Fatalf("year filter mismatch: %+v", got.Date)
	}
	if got.Date.Month != nil || got.Date.Day != nil {
		t.Fatalf("month/day should be open: %+v", got.Date)
	}
	if got.CreatedBy != "admin-1" {
		t.Fatalf("expected created_by=admin-1 got=%s", got.CreatedBy)
	}
}

func TestSQLRuleStoreDeleteIdempotent(t *testing.T) {
	db := openTestDB(t)
	store, _ := NewSQLRuleStore(db)
	ctx := context.Background()

	rule := &asteriskace.AccessRule{
		ID:        "rule-del",
		UserID:    "user-x",
		Domain:    asteriskace.AnyFilter(),
		Topic:     asteriskace.AnyFilter(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	removed, err := store.DeleteRule(ctx, "rule-del")
	if err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if !removed {
		t.Fatalf("expected first delete to report removal")
	}
	removed, err = store.DeleteRule(ctx, "rule-del")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if removed {
		t.Fatalf("expected second delete to be a no-op")
	}
}

func TestSQLLogStoreFilter(t *testing.T) {
	db := openTestDB(t)
	store, _ := NewSQLLogStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	entries := []*asteriskace.LogEntry{
		{ID: "e1", Timestamp: base, UserID: "user-a", Action: asteriskace.ActionLogin, IP: "10.0.0.1"},
		{ID: "e2", Timestamp: base.Add(time.Minute), UserID: "user-a", Action: asteriskace.ActionView, Details: map[string]any{"item_id": "lesson-1"}},
		{ID: "e3", Timestamp: base.Add(2 * time.Minute), UserID: "user-b", Action: asteriskace.ActionView},
	}
	for _, e := range entries {
		if err := store.AppendEntry(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.ID, err)
		}
	}

	got, err := store.ListEntries(ctx, asteriskace.LogFilter{UserID: "user-a", Action: asteriskace.ActionView})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ID != "e2" {
		t.Fatalf("expected e2, got %s", got[0].ID)
	}
	if got[0].Details["item_id"] != "lesson-1" {
		t.Fatalf("details lost in roundtrip: %+v", got[0].Details)
	}

	got, err = store.ListEntries(ctx, asteriskace.LogFilter{StartTime: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("list by time: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries from start time, got %d", len(got))
	}
}

func TestLogStoreDefaultQueryLimit(t *testing.T) {
	sqlStore, _ := NewSQLLogStore(openTestDB(t))
	backends := map[string]asteriskace.LogStore{
		"sql":    sqlStore,
		"memory": NewMemoryLogStore(),
	}
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for name, store := range backends {
		for i := 0; i < asteriskace.DefaultLogQueryLimit+20; i++ {
			e := &asteriskace.LogEntry{
				ID:        fmt.Sprintf("e%03d", i),
				Timestamp: base.Add(time.Duration(i) * time.Second),
				UserID:    "user-a",
				Action:    asteriskace.ActionLogin,
			}
			if err := store.AppendEntry(ctx, e); err != nil {
				t.Fatalf("%s: append %s: %v", name, e.ID, err)
			}
		}

		got, err := store.ListEntries(ctx, asteriskace.LogFilter{})
		if err != nil {
			t.Fatalf("%s: list entries: %v", name, err)
		}
		if len(got) != asteriskace.DefaultLogQueryLimit {
			t.Fatalf("%s: expected default cap of %d entries, got %d",
				name, asteriskace.DefaultLogQueryLimit, len(got))
		}

		got, err = store.ListEntries(ctx, asteriskace.LogFilter{Limit: 5})
		if err != nil {
			t.Fatalf("%s: list with limit: %v", name, err)
		}
		if len(got) != 5 {
			t.Fatalf("%s: expected 5 entries, got %d", name, len(got))
		}
	}
}

func TestSQLCatalogStoreUsers(t *testing.T) {
	db := openTestDB(t)
	store, _ := NewSQLCatalogStore(db)
	ctx := context.Background()

	u := &asteriskace.User{ID: "user-1", Email: "a@example.com", Role: asteriskace.RoleStudent, Status: asteriskace.StatusActive}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := store.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Email != "a@example.com" || got.Status != asteriskace.StatusActive {
		t.Fatalf("user mismatch: %+v", got)
	}

	if err := store.UpdateUserStatus(ctx, "user-1", asteriskace.StatusDisabled); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = store.GetUser(ctx, "user-1")
	if got.Status != asteriskace.StatusDisabled {
		t.Fatalf("expected disabled, got %s", got.Status)
	}

	at := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if err := store.TouchLastLogin(ctx, "user-1", at); err != nil {
		t.Fatalf("touch last login: %v", err)
	}

	if err := store.UpdateUserStatus(ctx, "missing", asteriskace.StatusActive); err != asteriskace.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.GetUser(ctx, "missing"); err != asteriskace.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	removed, err := store.DeleteUser(ctx, "user-1")
	if err != nil || !removed {
		t.Fatalf("delete user: removed=%v err=%v", removed, err)
	}
	removed, _ = store.DeleteUser(ctx, "user-1")
	if removed {
		t.Fatalf("expected second delete to be a no-op")
	}
}

func TestSQLCatalogStoreContent(t *testing.T) {
	db := openTestDB(t)
	store, _ := NewSQLCatalogStore(db)
	ctx := context.Background()

	if err := store.CreateDomain(ctx, &asteriskace.Domain{ID: "math", Name: "Mathematics"}); err != nil {
		t.Fatalf("create domain: %v", err)
	}
	if err := store.CreateTopic(ctx, &asteriskace.Topic{ID: "algebra", DomainID: "math", Name: "Algebra"}); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	item := &asteriskace.ContentItem{
		ID:         "lesson-1",
		DomainID:   "math",
		TopicID:    "algebra",
		Title:      "Linear equations",
		Date:       asteriskace.LessonDate{Year: 2026, Month: 3, Day: 10},
		Size:       1 << 20,
		StorageKey: "videos/lesson-1.mp4",
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.CreateContentItem(ctx, item); err != nil {
		t.Fatalf("create content: %v", err)
	}

	got, err := store.GetContentItem(ctx, "lesson-1")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if got.Date != (asteriskace.LessonDate{Year: 2026, Month: 3, Day: 10}) {
		t.Fatalf("lesson date mismatch: %+v", got.Date)
	}
	if got.StorageKey != "videos/lesson-1.mp4" {
		t.Fatalf("storage key mismatch: %s", got.StorageKey)
	}

	topics, err := store.ListTopicsByDomain(ctx, "math")
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 1 || topics[0].ID != "algebra" {
		t.Fatalf("topics mismatch: %+v", topics)
	}

	if _, err := store.GetTopic(ctx, "missing"); err != asteriskace.ErrTopicNotFound {
		t.Fatalf("expected ErrTopicNotFound, got %v", err)
	}
	if _, err := store.GetContentItem(ctx, "missing"); err != asteriskace.ErrItemNotFound {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	removed, err := store.DeleteContentItem(ctx, "lesson-1")
	if err != nil || !removed {
		t.Fatalf("delete content: removed=%v err=%v", removed, err)
	}
}
