package asteriskace

// RuleBuilder provides a fluent API for assembling grant requests, used by
// the admin API layer and tests.
type RuleBuilder struct {
	req GrantRequest
}

func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{}
}

func (b *RuleBuilder) User(id string) *RuleBuilder { b.req.UserID = id; return b }

func (b *RuleBuilder) Domain(id string) *RuleBuilder {
	b.req.DomainID = &id
	return b
}

func (b *RuleBuilder) Topic(id string) *RuleBuilder {
	b.req.TopicID = &id
	return b
}

func (b *RuleBuilder) Year(y int) *RuleBuilder {
	b.req.Year = &y
	return b
}

func (b *RuleBuilder) Month(m int) *RuleBuilder {
	b.req.Month = &m
	return b
}

func (b *RuleBuilder) Day(d int) *RuleBuilder {
	b.req.Day = &d
	return b
}

func (b *RuleBuilder) Days(n int) *RuleBuilder {
	b.req.DurationDays = n
	return b
}

func (b *RuleBuilder) By(adminID string) *RuleBuilder {
	b.req.GrantedBy = adminID
	return b
}

func (b *RuleBuilder) Build() GrantRequest { return b.req }
