package asteriskace_test

import (
	"context"
	"errors"
	"testing"

	"github.com/avrkr/asteriskace"
	"github.com/avrkr/asteriskace/logger"
	"github.com/avrkr/asteriskace/stores"
)

func sampleConfig() *asteriskace.Config {
	domainID := "math"
	topicID := "algebra"
	year := 2026
	return &asteriskace.Config{
		Version: 1,
		Domains: []asteriskace.DomainConfig{
			{ID: "math", Name: "Mathematics", Topics: []asteriskace.TopicConfig{
				{ID: "algebra", Name: "Algebra"},
				{ID: "geometry", Name: "Geometry"},
			}},
			{ID: "history", Name: "History", Topics: []asteriskace.TopicConfig{
				{ID: "ww2", Name: "World War II"},
			}},
		},
		Users: []*asteriskace.User{
			{ID: "student-1", Email: "s1@example.com", Role: asteriskace.RoleStudent, Status: asteriskace.StatusActive},
			{ID: "admin-1", Email: "admin@example.com", Role: asteriskace.RoleAdmin, Status: asteriskace.StatusActive},
		},
		Lessons: []*asteriskace.ContentItem{
			{ID: "lesson-1", DomainID: "math", TopicID: "algebra", Title: "Linear equations", Date: asteriskace.LessonDate{Year: 2026, Month: 3, Day: 10}},
		},
		Grants: []asteriskace.GrantRequest{
			{UserID: "student-1", DomainID: &domainID, TopicID: &topicID, Year: &year, DurationDays: 7, GrantedBy: "admin-1"},
			{UserID: "student-1", DurationDays: 30},
		},
		Engine: asteriskace.EngineConfig{AuditBufferSize: 256, SweepIntervalMs: 60000},
	}
}

func TestConfigYAMLRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	loaded, err := asteriskace.NewConfigLoader().LoadYAML(data)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	assertConfigsEqual(t, cfg, loaded)
}

func TestConfigJSONRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	loaded, err := asteriskace.NewConfigLoader().LoadJSON(data)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	assertConfigsEqual(t, cfg, loaded)
}

func TestConfigBinaryRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := asteriskace.EncodeBinaryConfig(cfg)
	if err != nil {
		t.Fatalf("encode binary: %v", err)
	}
	loaded, err := asteriskace.NewConfigLoader().LoadBinary(data)
	if err != nil {
		t.Fatalf("load binary: %v", err)
	}
	assertConfigsEqual(t, cfg, loaded)
	if loaded.Engine.AuditBufferSize != 256 || loaded.Engine.SweepIntervalMs != 60000 {
		t.Fatalf("engine section mismatch: %+v", loaded.Engine)
	}
}

func TestConfigBinaryRejectsGarbage(t *testing.T) {
	if _, err := asteriskace.NewConfigLoader().LoadBinary([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00}); err == nil {
		t.Fatalf("expected invalid magic error")
	}
}

func assertConfigsEqual(t *testing.T, want, got *asteriskace.Config) {
	t.Helper()
	if len(got.Domains) != len(want.Domains) {
		t.Fatalf("domains mismatch: %d vs %d", len(got.Domains), len(want.Domains))
	}
	if len(got.Domains[0].Topics) != 2 {
		t.Fatalf("topics lost: %+v", got.Domains[0])
	}
	if len(got.Users) != len(want.Users) || got.Users[0].Email != "s1@example.com" {
		t.Fatalf("users mismatch: %+v", got.Users)
	}
	if len(got.Lessons) != 1 || got.Lessons[0].Date != (asteriskace.LessonDate{Year: 2026, Month: 3, Day: 10}) {
		t.Fatalf("lessons mismatch: %+v", got.Lessons)
	}
	if len(got.Grants) != 2 {
		t.Fatalf("grants mismatch: %+v", got.Grants)
	}
	g := got.Grants[0]
	if g.DomainID == nil || *g.DomainID != "math" || g.TopicID == nil || *g.TopicID != "algebra" {
		t.Fatalf("grant scope lost: %+v", g)
	}
	if g.Year == nil || *g.Year != 2026 || g.Month != nil || g.Day != nil {
		t.Fatalf("grant date components mismatch: %+v", g)
	}
	open := got.Grants[1]
	if open.DomainID != nil || open.TopicID != nil || open.DurationDays != 30 {
		t.Fatalf("open grant mismatch: %+v", open)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := sampleConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := sampleConfig()
	bad.Grants[0].DurationDays = 0
	if err := bad.Validate(); !errors.Is(err, asteriskace.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}

	bad = sampleConfig()
	wrongDomain := "history"
	bad.Grants[0].DomainID = &wrongDomain
	if err := bad.Validate(); !errors.Is(err, asteriskace.ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope for topic outside domain, got %v", err)
	}

	bad = sampleConfig()
	bad.Grants[0].DomainID = nil
	if err := bad.Validate(); !errors.Is(err, asteriskace.ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope for topic without domain, got %v", err)
	}

	bad = sampleConfig()
	bad.Grants[0].UserID = "ghost"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for unknown grant user")
	}

	bad = sampleConfig()
	bad.Lessons[0].TopicID = "ww2"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for lesson topic outside its domain")
	}

	bad = sampleConfig()
	bad.Domains = append(bad.Domains, asteriskace.DomainConfig{ID: "math", Name: "Duplicate"})
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for duplicate domain id")
	}
}

func TestApplyConfigSeedsEngine(t *testing.T) {
	clock := &testClock{now: testStart}
	catalog := stores.NewMemoryCatalogStore()
	eng, err := asteriskace.NewEngine(
		stores.NewMemoryRuleStore(),
		catalog,
		stores.NewMemoryLogStore(),
		asteriskace.WithClock(clock.Now),
		asteriskace.WithLogger(logger.NewNullLogger()),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer eng.Close()
	ctx := context.Background()

	cfg := sampleConfig()
	if err := eng.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	users, err := catalog.ListUsers(ctx)
	if err != nil || len(users) != 2 {
		t.Fatalf("users not seeded: len=%d err=%v", len(users), err)
	}
	topics, _ := catalog.ListTopicsByDomain(ctx, "math")
	if len(topics) != 2 {
		t.Fatalf("topics not seeded: %+v", topics)
	}

	rules, err := eng.RulesForUser(ctx, "student-1")
	if err != nil {
		t.Fatalf("rules for user: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("grants not applied: %d", len(rules))
	}

	// the open grant makes the seeded lesson visible
	items, err := eng.VisibleContent(ctx, activeUser())
	if err != nil || len(items) != 1 {
		t.Fatalf("seeded content not visible: len=%d err=%v", len(items), err)
	}
}

func TestDSLRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := asteriskace.NewDSLEncoder().Encode(cfg)
	if err != nil {
		t.Fatalf("encode dsl: %v", err)
	}
	loaded, err := asteriskace.NewDSLParser().Parse(data)
	if err != nil {
		t.Fatalf("parse dsl: %v\n%s", err, data)
	}
	assertConfigsEqual(t, cfg, loaded)
	if loaded.Engine.AuditBufferSize != 256 {
		t.Fatalf("engine options lost: %+v", loaded.Engine)
	}
}

func TestDSLParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"unknown directive", "frobnicate x y\n"},
		{"topic without domain", "topic algebra math \"Algebra\"\n"},
		{"bad grant duration", "domain math \"Math\"\ngrant u1 math * */*/* seven\n"},
		{"bad grant date", "domain math \"Math\"\ngrant u1 math * 2026-03 7d\n"},
		{"bad engine option", "engine warp=9\n"},
	}
	for _, tc := range cases {
		if _, err := asteriskace.NewDSLParser().Parse([]byte(tc.src)); err == nil {
			t.Fatalf("%s: expected parse error", tc.name)
		}
	}
}

func TestDSLCommentsAndBlankLines(t *testing.T) {
	src := `# portal seed
domain math "Mathematics"
topic algebra math "Algebra"

user student-1 s1@example.com
user admin-1 admin@example.com role:admin

lesson lesson-1 math algebra 2026/3/10 "Linear equations"
grant student-1 math algebra 2026/*/* 7d by:admin-1
`
	cfg, err := asteriskace.NewDSLParser().Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Domains) != 1 || len(cfg.Domains[0].Topics) != 1 {
		t.Fatalf("catalog mismatch: %+v", cfg.Domains)
	}
	if cfg.Users[1].Role != asteriskace.RoleAdmin {
		t.Fatalf("role option lost: %+v", cfg.Users[1])
	}
	if len(cfg.Grants) != 1 {
		t.Fatalf("grant missing")
	}
	g := cfg.Grants[0]
	if g.Year == nil || *g.Year != 2026 || g.Month != nil {
		t.Fatalf("grant date mismatch: %+v", g)
	}
	if g.GrantedBy != "admin-1" || g.DurationDays != 7 {
		t.Fatalf("grant options mismatch: %+v", g)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("parsed config should validate: %v", err)
	}
}
