package asteriskace

import (
	"context"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// UserStatus controls whether an account may be evaluated at all
type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

// UserRole distinguishes students from administrators
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleAdmin   UserRole = "admin"
)

// User represents a portal account
type User struct {
	ID        string     `json:"id" yaml:"id"`
	Email     string     `json:"email" yaml:"email"`
	Role      UserRole   `json:"role" yaml:"role"`
	Status    UserStatus `json:"status" yaml:"status"`
	LastLogin time.Time  `json:"last_login,omitempty" yaml:"last_login,omitempty"`
}

// Domain is a top-level subject category
type Domain struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Topic is a subdivision of exactly one Domain. The domain membership is
// fixed at creation; re-parenting is not supported.
type Topic struct {
	ID       string `json:"id" yaml:"id"`
	DomainID string `json:"domain_id" yaml:"domain_id"`
	Name     string `json:"name" yaml:"name"`
}

// LessonDate is the calendar date a lesson covers (not its upload date)
type LessonDate struct {
	Year  int `json:"year" yaml:"year"`
	Month int `json:"month" yaml:"month"`
	Day   int `json:"day" yaml:"day"`
}

// ContentItem is a single video lesson. Title, size and storage key are
// opaque to access decisions; only the domain, topic and date take part.
type ContentItem struct {
	ID         string     `json:"id" yaml:"id"`
	DomainID   string     `json:"domain_id" yaml:"domain_id"`
	TopicID    string     `json:"topic_id" yaml:"topic_id"`
	Title      string     `json:"title" yaml:"title"`
	Date       LessonDate `json:"date" yaml:"date"`
	Size       int64      `json:"size,omitempty" yaml:"size,omitempty"`
	StorageKey string     `json:"storage_key,omitempty" yaml:"storage_key,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// ============================================================================
// FILTERS
// ============================================================================

// Filter is a tagged optional id filter: either a specific id or "any".
// The tag is explicit so an absent filter can never be confused with a
// filter on the empty string.
type Filter struct {
	ID  string `json:"id,omitempty" yaml:"id,omitempty"`
	Any bool   `json:"any,omitempty" yaml:"any,omitempty"`
}

// AnyFilter matches every id
func AnyFilter() Filter { return Filter{Any: true} }

// ExactFilter matches only the given id
func ExactFilter(id string) Filter { return Filter{ID: id} }

// IsAny reports whether the filter is a wildcard
func (f Filter) IsAny() bool { return f.Any }

// Matches reports whether the filter accepts the given id
func (f Filter) Matches(id string) bool {
	return f.Any || f.ID == id
}

// DateFilter holds independently optional year/month/day components.
// A nil component matches any value in that position.
type DateFilter struct {
	Year  *int `json:"year,omitempty" yaml:"year,omitempty"`
	Month *int `json:"month,omitempty" yaml:"month,omitempty"`
	Day   *int `json:"day,omitempty" yaml:"day,omitempty"`
}

// Matches reports whether every set component equals the item date
func (d DateFilter) Matches(date LessonDate) bool {
	if d.Year != nil && *d.Year != date.Year {
		return false
	}
	if d.Month != nil && *d.Month != date.Month {
		return false
	}
	if d.Day != nil && *d.Day != date.Day {
		return false
	}
	return true
}

// IsOpen reports whether no component is set
func (d DateFilter) IsOpen() bool {
	return d.Year == nil && d.Month == nil && d.Day == nil
}

// ============================================================================
// ACCESS RULES
// ============================================================================

// AccessRule is a per-user grant scoping visible content by optional
// domain/topic/date filters and an expiration time. Rules are immutable
// after creation; revocation deletes them.
type AccessRule struct {
	ID        string     `json:"id" yaml:"id"`
	UserID    string     `json:"user_id" yaml:"user_id"`
	Domain    Filter     `json:"domain" yaml:"domain"`
	Topic     Filter     `json:"topic" yaml:"topic"`
	Date      DateFilter `json:"date" yaml:"date"`
	ExpiresAt time.Time  `json:"expires_at" yaml:"expires_at"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	CreatedBy string     `json:"created_by,omitempty" yaml:"created_by,omitempty"`
}

// IsExpired reports whether the rule has expired at the given instant.
// A rule exactly at its expiry counts as expired.
func (r *AccessRule) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// GrantRequest carries the admin-supplied fields for a new rule. Nil
// pointer fields mean "any" in that position.
type GrantRequest struct {
	UserID       string  `json:"user_id" yaml:"user_id"`
	DomainID     *string `json:"domain_id,omitempty" yaml:"domain_id,omitempty"`
	TopicID      *string `json:"topic_id,omitempty" yaml:"topic_id,omitempty"`
	Year         *int    `json:"year,omitempty" yaml:"year,omitempty"`
	Month        *int    `json:"month,omitempty" yaml:"month,omitempty"`
	Day          *int    `json:"day,omitempty" yaml:"day,omitempty"`
	DurationDays int     `json:"duration_days" yaml:"duration_days"`
	GrantedBy    string  `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
}

// ============================================================================
// DECISIONS
// ============================================================================

// DenialReason classifies why an evaluation denied access
type DenialReason string

const (
	DenyAccountDisabled DenialReason = "account-disabled"
	DenyNoMatchingRule  DenialReason = "no-matching-rule"
)

// Decision is the outcome of one access evaluation
type Decision struct {
	Allowed     bool         `json:"allowed"`
	Reason      DenialReason `json:"reason,omitempty"`
	MatchedRule string       `json:"matched_rule,omitempty"`
	Trace       []string     `json:"trace,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ============================================================================
// ACCESS LOG
// ============================================================================

// ActionKind labels an access log entry
type ActionKind string

const (
	ActionLogin         ActionKind = "LOGIN"
	ActionView          ActionKind = "VIEW_CONTENT"
	ActionGrant         ActionKind = "GRANT_ACCESS"
	ActionRevoke        ActionKind = "REVOKE_ACCESS"
	ActionUpload        ActionKind = "UPLOAD_CONTENT"
	ActionDeleteContent ActionKind = "DELETE_CONTENT"
)

// LogEntry is an immutable access log record. UserID is empty for system
// events. Entries are append-only and never mutated.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"user_id,omitempty"`
	Action    ActionKind     `json:"action"`
	IP        string         `json:"ip,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// DefaultLogQueryLimit caps log queries that do not set an explicit limit.
// Every LogStore backend applies the same cap.
const DefaultLogQueryLimit = 100

// LogFilter narrows access log queries. A zero Limit means
// DefaultLogQueryLimit.
type LogFilter struct {
	UserID    string
	Action    ActionKind
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// RuleStore manages access rule persistence. Implementations must allow
// concurrent reads and serialize writes; DeleteRule is idempotent and
// reports whether the rule existed.
type RuleStore interface {
	CreateRule(ctx context.Context, r *AccessRule) error
	ListRulesByUser(ctx context.Context, userID string) ([]*AccessRule, error)
	DeleteRule(ctx context.Context, id string) (bool, error)
	ListAllRules(ctx context.Context) ([]*AccessRule, error)
}

// LogStore manages the append-only access log
type LogStore interface {
	AppendEntry(ctx context.Context, entry *LogEntry) error
	ListEntries(ctx context.Context, filter LogFilter) ([]*LogEntry, error)
}

// CatalogStore manages users, domains, topics and content items
type CatalogStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUserStatus(ctx context.Context, id string, status UserStatus) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) (bool, error)

	CreateDomain(ctx context.Context, d *Domain) error
	ListDomains(ctx context.Context) ([]*Domain, error)

	CreateTopic(ctx context.Context, t *Topic) error
	GetTopic(ctx context.Context, id string) (*Topic, error)
	ListTopicsByDomain(ctx context.Context, domainID string) ([]*Topic, error)

	CreateContentItem(ctx context.Context, item *ContentItem) error
	GetContentItem(ctx context.Context, id string) (*ContentItem, error)
	ListContentItems(ctx context.Context) ([]*ContentItem, error)
	DeleteContentItem(ctx context.Context, id string) (bool, error)
}
