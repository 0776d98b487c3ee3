package asteriskace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/avrkr/asteriskace/logger"
)

// Clock supplies the current time to the engine. Expiry comparisons never
// read an ambient clock; they always go through this function so boundary
// conditions are testable.
type Clock func() time.Time

// EngineOption configures an Engine at construction time
type EngineOption func(e *Engine) error

// WithLogger installs a structured logger on the engine
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// WithClock installs a custom time source
func WithClock(c Clock) EngineOption {
	return func(e *Engine) error {
		e.clock = c
		return nil
	}
}

// WithTraceIDFunc installs a custom id generator for log entries
func WithTraceIDFunc(f logger.TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		e.traceID = f
		return nil
	}
}

// WithAuditBufferSize sets the capacity of the async access log channel
func WithAuditBufferSize(n int) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("audit buffer size must be positive, got %d", n)
		}
		e.auditBufferSize = n
		return nil
	}
}

// WithRuleCacheConfig overrides the ristretto rule cache sizing
func WithRuleCacheConfig(numCounters, maxCost, bufferItems int64) EngineOption {
	return func(e *Engine) error {
		e.cacheNumCounters = numCounters
		e.cacheMaxCost = maxCost
		e.cacheBufferItems = bufferItems
		return nil
	}
}

// ============================================================================
// ENGINE
// ============================================================================

// Engine is the access-control decision core: it owns rule grant/revoke,
// per-request evaluation, content filtering and the async access log. It
// holds no per-request state; everything durable lives in the stores.
type Engine struct {
	rules   RuleStore
	catalog CatalogStore
	logs    LogStore

	clock   Clock
	log     logger.Logger
	traceID logger.TraceIDFunc

	// ruleCache holds per-user rule snapshots keyed by (user, epoch).
	// Any rule mutation bumps the epoch, making every older key
	// unreachable, so a revoke is visible to the very next evaluation
	// even while buffered cache writes are still in flight.
	ruleCache *ristretto.Cache
	epoch     atomic.Int64

	cacheNumCounters int64
	cacheMaxCost     int64
	cacheBufferItems int64

	auditCh         chan LogEntry
	auditBufferSize int
	auditWG         sync.WaitGroup
	auditMu         sync.RWMutex
	auditClosed     bool
	closeOnce       sync.Once
}

// NewEngine wires the engine to its stores. Close must be called to drain
// the access log channel.
func NewEngine(rules RuleStore, catalog CatalogStore, logs LogStore, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		rules:            rules,
		catalog:          catalog,
		logs:             logs,
		clock:            time.Now,
		log:              logger.NewPhusluLogger(),
		traceID:          uuid.NewString,
		cacheNumCounters: 1 << 14,
		cacheMaxCost:     1 << 20,
		cacheBufferItems: 64,
		auditBufferSize:  1024,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: e.cacheNumCounters,
		MaxCost:     e.cacheMaxCost,
		BufferItems: e.cacheBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("rule cache: %w", err)
	}
	e.ruleCache = cache

	e.auditCh = make(chan LogEntry, e.auditBufferSize)
	e.auditWG.Add(1)
	go func() {
		defer e.auditWG.Done()
		bg := context.Background()
		for entry := range e.auditCh {
			if err := e.logs.AppendEntry(bg, &entry); err != nil {
				// logging failures never reach the caller
				e.log.Error("append access log entry",
					"action", string(entry.Action),
					"user", entry.UserID,
					"error", err.Error())
			}
		}
	}()
	return e, nil
}

// Close drains the access log channel and releases the rule cache
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.auditMu.Lock()
		e.auditClosed = true
		close(e.auditCh)
		e.auditMu.Unlock()
		e.auditWG.Wait()
		if e.ruleCache != nil {
			e.ruleCache.Close()
		}
	})
}

// ============================================================================
// RULE OPERATIONS
// ============================================================================

// Grant validates an admin grant request, computes the expiration from the
// requested duration and persists the rule. Scope validation never touches
// the rule store: invalid requests are rejected first.
func (e *Engine) Grant(ctx context.Context, req GrantRequest) (*AccessRule, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("grant: user id is required")
	}
	if req.DurationDays <= 0 {
		return nil, fmt.Errorf("grant for user %q: %w", req.UserID, ErrInvalidDuration)
	}
	if req.Month != nil && (*req.Month < 1 || *req.Month > 12) {
		return nil, fmt.Errorf("month %d out of range: %w", *req.Month, ErrInvalidDate)
	}
	if req.Day != nil && (*req.Day < 1 || *req.Day > 31) {
		return nil, fmt.Errorf("day %d out of range: %w", *req.Day, ErrInvalidDate)
	}

	domain := AnyFilter()
	if req.DomainID != nil {
		domain = ExactFilter(*req.DomainID)
	}
	topic := AnyFilter()
	if req.TopicID != nil {
		if req.DomainID == nil {
			return nil, fmt.Errorf("topic %q without a domain: %w", *req.TopicID, ErrInvalidScope)
		}
		t, err := e.catalog.GetTopic(ctx, *req.TopicID)
		if err != nil {
			return nil, err
		}
		if t.DomainID != *req.DomainID {
			return nil, fmt.Errorf("topic %q belongs to domain %q, not %q: %w",
				*req.TopicID, t.DomainID, *req.DomainID, ErrInvalidScope)
		}
		topic = ExactFilter(*req.TopicID)
	}

	now := e.clock()
	rule := &AccessRule{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Domain:    domain,
		Topic:     topic,
		Date:      DateFilter{Year: req.Year, Month: req.Month, Day: req.Day},
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, req.DurationDays),
		CreatedBy: req.GrantedBy,
	}
	if err := e.rules.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	e.epoch.Add(1)
	e.audit(LogEntry{
		UserID: req.GrantedBy,
		Action: ActionGrant,
		Details: map[string]any{
			"rule_id":       rule.ID,
			"target_user":   rule.UserID,
			"expires_at":    rule.ExpiresAt,
			"duration_days": req.DurationDays,
		},
	})
	e.log.Info("access granted",
		"rule", rule.ID, "user", rule.UserID, "by", req.GrantedBy)
	return rule, nil
}

// Revoke deletes a rule. Revocation is immediate and total: after Revoke
// returns true, no evaluation can match via that rule. Revoking an unknown
// id is a benign no-op reported as false.
func (e *Engine) Revoke(ctx context.Context, ruleID, revokedBy string) (bool, error) {
	found, err := e.rules.DeleteRule(ctx, ruleID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	e.epoch.Add(1)
	// the entry is enqueued only after the store delete completed, so the
	// revoke is never observably reordered before the mutation it records
	e.audit(LogEntry{
		UserID:  revokedBy,
		Action:  ActionRevoke,
		Details: map[string]any{"rule_id": ruleID},
	})
	e.log.Info("access revoked", "rule", ruleID, "by", revokedBy)
	return true, nil
}

// RulesForUser lists every rule owned by a user, expired ones included,
// for the admin rule table.
func (e *Engine) RulesForUser(ctx context.Context, userID string) ([]*AccessRule, error) {
	return e.rules.ListRulesByUser(ctx, userID)
}

// DeleteUserRules removes all rules owned by a user. Used when an account
// is deleted.
func (e *Engine) DeleteUserRules(ctx context.Context, userID string) (removed int, err error) {
	// invalidate even on partial failure: a rule already deleted from the
	// store must drop out of cached snapshots immediately
	defer func() {
		if removed > 0 {
			e.epoch.Add(1)
		}
	}()
	rules, err := e.rules.ListRulesByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, r := range rules {
		found, err := e.rules.DeleteRule(ctx, r.ID)
		if err != nil {
			return removed, err
		}
		if found {
			removed++
		}
	}
	return removed, nil
}

// ============================================================================
// EVALUATION
// ============================================================================

// Evaluate answers "may this user view this item now". Disabled accounts
// are denied before any rule is read; otherwise the user's rules are ORed
// together, short-circuiting on the first match.
func (e *Engine) Evaluate(ctx context.Context, user *User, item *ContentItem) (*Decision, error) {
	now := e.clock()
	d := &Decision{Timestamp: now}
	if user == nil || user.Status != StatusActive {
		d.Reason = DenyAccountDisabled
		return d, nil
	}
	rules, err := e.activeRules(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if r := matchAnyRule(rules, item, now); r != nil {
		d.Allowed = true
		d.MatchedRule = r.ID
		return d, nil
	}
	d.Reason = DenyNoMatchingRule
	return d, nil
}

// Explain evaluates like Evaluate but walks every rule and records a trace
// line per rule, so a denial reads "no matching rule" rather than "first
// rule failed".
func (e *Engine) Explain(ctx context.Context, user *User, item *ContentItem) (*Decision, error) {
	now := e.clock()
	d := &Decision{Timestamp: now, Trace: make([]string, 0)}
	if user == nil || user.Status != StatusActive {
		d.Reason = DenyAccountDisabled
		d.Trace = append(d.Trace, "DENY: account disabled")
		return d, nil
	}
	rules, err := e.rules.ListRulesByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		switch {
		case r.IsExpired(now):
			d.Trace = append(d.Trace, fmt.Sprintf("rule=%s expired at %s", r.ID, r.ExpiresAt.Format(time.RFC3339)))
		case !r.Domain.Matches(item.DomainID):
			d.Trace = append(d.Trace, fmt.Sprintf("rule=%s domain_no_match", r.ID))
		case !r.Topic.Matches(item.TopicID):
			d.Trace = append(d.Trace, fmt.Sprintf("rule=%s topic_no_match", r.ID))
		case !r.Date.Matches(item.Date):
			d.Trace = append(d.Trace, fmt.Sprintf("rule=%s date_no_match", r.ID))
		default:
			d.Trace = append(d.Trace, fmt.Sprintf("rule=%s MATCH", r.ID))
			if !d.Allowed {
				d.Allowed = true
				d.MatchedRule = r.ID
			}
		}
	}
	if !d.Allowed {
		d.Reason = DenyNoMatchingRule
		d.Trace = append(d.Trace, "DENY: no matching rule")
	}
	return d, nil
}

// AuthorizeStream is the gate the streaming transport consults before a
// session starts. It resolves the user and item, evaluates, and appends a
// content-view log entry on allow. Decisions are never cached across
// sessions.
func (e *Engine) AuthorizeStream(ctx context.Context, userID, itemID, ip string) (*Decision, error) {
	user, err := e.catalog.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, err := e.catalog.GetContentItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	d, err := e.Evaluate(ctx, user, item)
	if err != nil {
		return nil, err
	}
	if d.Allowed {
		e.audit(LogEntry{
			UserID: userID,
			Action: ActionView,
			IP:     ip,
			Details: map[string]any{
				"item_id": item.ID,
				"title":   item.Title,
			},
		})
	}
	e.log.Debug("stream decision",
		"user", userID, "item", itemID, "allowed", d.Allowed, "reason", string(d.Reason))
	return d, nil
}

// activeRules returns the user's rule snapshot, served from the epoch-keyed
// cache when possible. Expired rules are filtered lazily by the matcher.
func (e *Engine) activeRules(ctx context.Context, userID string) ([]*AccessRule, error) {
	key := fmt.Sprintf("rules:%s:%d", userID, e.epoch.Load())
	if v, ok := e.ruleCache.Get(key); ok {
		if rules, ok := v.([]*AccessRule); ok {
			return rules, nil
		}
	}
	rules, err := e.rules.ListRulesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.ruleCache.Set(key, rules, int64(len(rules)+1))
	return rules, nil
}

// ============================================================================
// CATALOG OPERATIONS
// ============================================================================

// AddContentItem stores a new lesson and records the upload
func (e *Engine) AddContentItem(ctx context.Context, item *ContentItem, uploadedBy string) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = e.clock()
	}
	if err := e.catalog.CreateContentItem(ctx, item); err != nil {
		return err
	}
	e.audit(LogEntry{
		UserID:  uploadedBy,
		Action:  ActionUpload,
		Details: map[string]any{"item_id": item.ID, "title": item.Title},
	})
	return nil
}

// RemoveContentItem deletes a lesson and records the deletion
func (e *Engine) RemoveContentItem(ctx context.Context, itemID, deletedBy string) (bool, error) {
	found, err := e.catalog.DeleteContentItem(ctx, itemID)
	if err != nil || !found {
		return found, err
	}
	e.audit(LogEntry{
		UserID:  deletedBy,
		Action:  ActionDeleteContent,
		Details: map[string]any{"item_id": itemID},
	})
	return true, nil
}

// ============================================================================
// ACCESS LOG
// ============================================================================

// RecordLogin stamps the account's last login and appends a LOGIN entry
func (e *Engine) RecordLogin(ctx context.Context, userID, ip string) {
	if err := e.catalog.TouchLastLogin(ctx, userID, e.clock()); err != nil {
		e.log.Error("touch last login", "user", userID, "error", err.Error())
	}
	e.audit(LogEntry{UserID: userID, Action: ActionLogin, IP: ip})
}

// AccessLog queries the access log for the admin activity table
func (e *Engine) AccessLog(ctx context.Context, filter LogFilter) ([]*LogEntry, error) {
	return e.logs.ListEntries(ctx, filter)
}

// audit enqueues an entry on the async log channel. It never blocks the
// decision or mutation path: a full channel drops the entry and surfaces
// the drop through the structured logger only. An entry arriving after
// Close is dropped the same way rather than hitting the closed channel.
func (e *Engine) audit(entry LogEntry) {
	if entry.ID == "" {
		entry.ID = e.traceID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.clock()
	}
	e.auditMu.RLock()
	defer e.auditMu.RUnlock()
	if e.auditClosed {
		e.log.Error("access log entry dropped after close",
			"action", string(entry.Action), "user", entry.UserID)
		return
	}
	select {
	case e.auditCh <- entry:
	default:
		e.log.Error("access log entry dropped",
			"action", string(entry.Action), "user", entry.UserID)
	}
}
