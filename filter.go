package asteriskace

import (
	"context"
	"time"
)

// VisibleContent returns the subset of the catalog the user may view, in
// catalog order. The user's active rules are pre-grouped by domain so each
// item only checks the rules touching its domain instead of the full set.
func (e *Engine) VisibleContent(ctx context.Context, user *User) ([]*ContentItem, error) {
	out := make([]*ContentItem, 0)
	if user == nil || user.Status != StatusActive {
		return out, nil
	}
	rules, err := e.activeRules(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	now := e.clock()
	groups := groupRulesByDomain(rules, now)
	if groups.empty() {
		return out, nil
	}
	items, err := e.catalog.ListContentItems(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if groups.matches(item, now) {
			out = append(out, item)
		}
	}
	return out, nil
}

// ruleGroups buckets non-expired rules by specific domain id, with a
// separate bucket for any-domain rules.
type ruleGroups struct {
	byDomain  map[string][]*AccessRule
	anyDomain []*AccessRule
}

func groupRulesByDomain(rules []*AccessRule, now time.Time) *ruleGroups {
	g := &ruleGroups{byDomain: make(map[string][]*AccessRule)}
	for _, r := range rules {
		if r.IsExpired(now) {
			continue
		}
		if r.Domain.IsAny() {
			g.anyDomain = append(g.anyDomain, r)
			continue
		}
		g.byDomain[r.Domain.ID] = append(g.byDomain[r.Domain.ID], r)
	}
	return g
}

func (g *ruleGroups) empty() bool {
	return len(g.anyDomain) == 0 && len(g.byDomain) == 0
}

func (g *ruleGroups) matches(item *ContentItem, now time.Time) bool {
	if matchAnyRule(g.anyDomain, item, now) != nil {
		return true
	}
	return matchAnyRule(g.byDomain[item.DomainID], item, now) != nil
}
