package asteriskace

import "time"

// RuleMatches reports whether a rule grants access to an item at the given
// instant. The comparison time is always an explicit parameter so expiry
// boundaries can be tested deterministically.
//
// A rule matches iff all of the following hold:
//  1. now is strictly before the rule's expiration,
//  2. the domain filter is "any" or equals the item's domain,
//  3. the topic filter is "any" or equals the item's topic,
//  4. every set date component equals the item's date component.
//
// There is no partial credit: one mismatched specific component denies the
// whole rule. OR across a user's rule set happens in the Engine.
func RuleMatches(r *AccessRule, item *ContentItem, now time.Time) bool {
	if r == nil || item == nil {
		return false
	}
	if r.IsExpired(now) {
		return false
	}
	if !r.Domain.Matches(item.DomainID) {
		return false
	}
	if !r.Topic.Matches(item.TopicID) {
		return false
	}
	return r.Date.Matches(item.Date)
}

// matchAnyRule returns the first rule in rules that matches the item, or
// nil. Iteration order does not affect the outcome; the set is pure OR.
func matchAnyRule(rules []*AccessRule, item *ContentItem, now time.Time) *AccessRule {
	for _, r := range rules {
		if RuleMatches(r, item, now) {
			return r
		}
	}
	return nil
}
