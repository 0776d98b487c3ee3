package asteriskace

import (
	"testing"
	"time"
)

func testItem() *ContentItem {
	return &ContentItem{
		ID:       "lesson-1",
		DomainID: "math",
		TopicID:  "algebra",
		Title:    "Linear equations",
		Date:     LessonDate{Year: 2026, Month: 3, Day: 10},
	}
}

func TestRuleMatchesOpenRule(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	r := &AccessRule{
		ID:        "r1",
		UserID:    "u1",
		Domain:    AnyFilter(),
		Topic:     AnyFilter(),
		ExpiresAt: now.Add(time.Hour),
	}
	if !RuleMatches(r, testItem(), now) {
		t.Fatalf("open rule should match any item")
	}
}

func TestRuleMatchesExpiryBoundary(t *testing.T) {
	expiry := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	r := &AccessRule{
		ID:        "r1",
		UserID:    "u1",
		Domain:    AnyFilter(),
		Topic:     AnyFilter(),
		ExpiresAt: expiry,
	}
	if !RuleMatches(r, testItem(), expiry.Add(-time.Nanosecond)) {
		t.Fatalf("rule should match just before expiry")
	}
	// exactly at the expiry instant the rule is already expired
	if RuleMatches(r, testItem(), expiry) {
		t.Fatalf("rule should not match at the expiry instant")
	}
	if RuleMatches(r, testItem(), expiry.Add(time.Second)) {
		t.Fatalf("rule should not match after expiry")
	}
}

func TestRuleMatchesComponentMismatch(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	item := testItem()
	year := 2026
	otherYear := 2025
	month := 3
	day := 11

	cases := []struct {
		name string
		rule *AccessRule
		want bool
	}{
		{"domain mismatch", &AccessRule{Domain: ExactFilter("history"), Topic: AnyFilter(), ExpiresAt: now.Add(time.Hour)}, false},
		{"topic mismatch", &AccessRule{Domain: ExactFilter("math"), Topic: ExactFilter("geometry"), ExpiresAt: now.Add(time.Hour)}, false},
		{"year mismatch", &AccessRule{Domain: AnyFilter(), Topic: AnyFilter(), Date: DateFilter{Year: &otherYear}, ExpiresAt: now.Add(time.Hour)}, false},
		{"day mismatch", &AccessRule{Domain: AnyFilter(), Topic: AnyFilter(), Date: DateFilter{Day: &day}, ExpiresAt: now.Add(time.Hour)}, false},
		{"all components match", &AccessRule{Domain: ExactFilter("math"), Topic: ExactFilter("algebra"), Date: DateFilter{Year: &year, Month: &month}, ExpiresAt: now.Add(time.Hour)}, true},
		{"domain only", &AccessRule{Domain: ExactFilter("math"), Topic: AnyFilter(), ExpiresAt: now.Add(time.Hour)}, true},
	}

	for _, tc := range cases {
		if got := RuleMatches(tc.rule, item, now); got != tc.want {
			t.Fatalf("%s: RuleMatches=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestMatchAnyRuleFirstMatch(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	expired := &AccessRule{ID: "r-expired", Domain: AnyFilter(), Topic: AnyFilter(), ExpiresAt: now.Add(-time.Hour)}
	wrong := &AccessRule{ID: "r-wrong", Domain: ExactFilter("history"), Topic: AnyFilter(), ExpiresAt: now.Add(time.Hour)}
	good := &AccessRule{ID: "r-good", Domain: ExactFilter("math"), Topic: AnyFilter(), ExpiresAt: now.Add(time.Hour)}

	got := matchAnyRule([]*AccessRule{expired, wrong, good}, testItem(), now)
	if got == nil || got.ID != "r-good" {
		t.Fatalf("expected r-good, got %+v", got)
	}
	if matchAnyRule([]*AccessRule{expired, wrong}, testItem(), now) != nil {
		t.Fatalf("expected no match")
	}
	if matchAnyRule(nil, testItem(), now) != nil {
		t.Fatalf("nil rule set should not match")
	}
}
