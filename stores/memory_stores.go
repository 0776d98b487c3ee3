package stores

import (
	"context"
	"sync"
	"time"

	"github.com/avrkr/asteriskace"
)

// MemoryRuleStore keeps access rules in-memory for testing/demo. Rules
// are returned in creation order.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]*asteriskace.AccessRule
	order []string
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]*asteriskace.AccessRule)}
}

func (s *MemoryRuleStore) CreateRule(ctx context.Context, r *asteriskace.AccessRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *MemoryRuleStore) ListRulesByUser(ctx context.Context, userID string) ([]*asteriskace.AccessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*asteriskace.AccessRule, 0)
	for _, id := range s.order {
		r := s.rules[id]
		if r != nil && r.UserID == userID {
			result = append(result, cloneRule(r))
		}
	}
	return result, nil
}

func (s *MemoryRuleStore) DeleteRule(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return false, nil
	}
	delete(s.rules, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryRuleStore) ListAllRules(ctx context.Context) ([]*asteriskace.AccessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*asteriskace.AccessRule, 0, len(s.order))
	for _, id := range s.order {
		if r := s.rules[id]; r != nil {
			result = append(result, cloneRule(r))
		}
	}
	return result, nil
}

// MemoryLogStore keeps the access log in-memory
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries []*asteriskace.LogEntry
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{entries: make([]*asteriskace.LogEntry, 0)}
}

func (s *MemoryLogStore) AppendEntry(ctx context.Context, entry *asteriskace.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *entry
	s.entries = append(s.entries, &dup)
	return nil
}

func (s *MemoryLogStore) ListEntries(ctx context.Context, filter asteriskace.LogFilter) ([]*asteriskace.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*asteriskace.LogEntry, 0)
	for _, e := range s.entries {
		if !matchesLogFilter(e, filter) {
			continue
		}
		dup := *e
		result = append(result, &dup)
		if len(result) >= logQueryLimit(filter) {
			break
		}
	}
	return result, nil
}

// MemoryCatalogStore keeps users, domains, topics and content items
// in-memory. Listings preserve creation order.
type MemoryCatalogStore struct {
	mu        sync.RWMutex
	users     map[string]*asteriskace.User
	userOrder []string
	domains   []*asteriskace.Domain
	topics    map[string]*asteriskace.Topic
	topicOrd  []string
	items     map[string]*asteriskace.ContentItem
	itemOrder []string
}

func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{
		users:  make(map[string]*asteriskace.User),
		topics: make(map[string]*asteriskace.Topic),
		items:  make(map[string]*asteriskace.ContentItem),
	}
}

func (s *MemoryCatalogStore) CreateUser(ctx context.Context, u *asteriskace.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; !exists {
		s.userOrder = append(s.userOrder, u.ID)
	}
	dup := *u
	s.users[u.ID] = &dup
	return nil
}

func (s *MemoryCatalogStore) GetUser(ctx context.Context, id string) (*asteriskace.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, asteriskace.ErrUserNotFound
	}
	dup := *u
	return &dup, nil
}

func (s *MemoryCatalogStore) ListUsers(ctx context.Context) ([]*asteriskace.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*asteriskace.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		if u := s.users[id]; u != nil {
			dup := *u
			result = append(result, &dup)
		}
	}
	return result, nil
}

func (s *MemoryCatalogStore) UpdateUserStatus(ctx context.Context, id string, status asteriskace.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return asteriskace.ErrUserNotFound
	}
	u.Status = status
	return nil
}

func (s *MemoryCatalogStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return asteriskace.ErrUserNotFound
	}
	u.LastLogin = at
	return nil
}

func (s *MemoryCatalogStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	for i, uid := range s.userOrder {
		if uid == id {
			s.userOrder = append(s.userOrder[:i], s.userOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryCatalogStore) CreateDomain(ctx context.Context, d *asteriskace.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *d
	s.domains = append(s.domains, &dup)
	return nil
}

func (s *MemoryCatalogStore) ListDomains(ctx context.Context) ([]*asteriskace.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*asteriskace.Domain, 0, len(s.domains))
	for _, d := range s.domains {
		dup := *d
		result = append(result, &dup)
	}
	return result, nil
}

func (s *MemoryCatalogStore) CreateTopic(ctx context.Context, t *asteriskace.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.topics[t.ID]; !exists {
		s.topicOrd = append(s.topicOrd, t.ID)
	}
	dup := *t
	s.topics[t.ID] = &dup
	return nil
}

func (s *MemoryCatalogStore) GetTopic(ctx context.Context, id string) (*asteriskace.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	if !ok {
		return nil, asteriskace.ErrTopicNotFound
	}
	dup := *t
	return &dup, nil
}

func (s *MemoryCatalogStore) ListTopicsByDomain(ctx context.Context, domainID string) ([]*asteriskace.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*asteriskace.Topic, 0)
	for _, id := range s.topicOrd {
		t := s.topics[id]
		if t != nil && t.DomainID == domainID {
			dup := *t
			result = append(result, &dup)
		}
	}
	return result, nil
}

func (s *MemoryCatalogStore) CreateContentItem(ctx context.Context, item *asteriskace.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[item.ID]; !exists {
		s.itemOrder = append(s.itemOrder, item.ID)
	}
	dup := *item
	s.items[item.ID] = &dup
	return nil
}

func (s *MemoryCatalogStore) GetContentItem(ctx context.Context, id string) (*asteriskace.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, asteriskace.ErrItemNotFound
	}
	dup := *item
	return &dup, nil
}

func (s *MemoryCatalogStore) ListContentItems(ctx context.Context) ([]*asteriskace.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*asteriskace.ContentItem, 0, len(s.itemOrder))
	for _, id := range s.itemOrder {
		if item := s.items[id]; item != nil {
			dup := *item
			result = append(result, &dup)
		}
	}
	return result, nil
}

func (s *MemoryCatalogStore) DeleteContentItem(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	for i, iid := range s.itemOrder {
		if iid == id {
			s.itemOrder = append(s.itemOrder[:i], s.itemOrder[i+1:]...)
			break
		}
	}
	return true, nil
}
