package asteriskace

import (
	"fmt"
	"strconv"
	"strings"
)

// DSL Syntax:
// domain <id> "<name>"
// topic <id> <domain> "<name>"
// user <id> <email> [role:<role>] [status:<status>]
// lesson <id> <domain> <topic> <y>/<m>/<d> "<title>"
// grant <user> <domain|*> <topic|*> <y|*>/<m|*>/<d|*> <n>d [by:<id>]
// engine <key>=<value>...

type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser {
	return &DSLParser{}
}

type DSLEncoder struct {
	buf []byte
}

func NewDSLEncoder() *DSLEncoder {
	return &DSLEncoder{buf: make([]byte, 0, 4096)}
}

func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]
	var tmp [20]byte

	for _, d := range cfg.Domains {
		e.buf = append(e.buf, "domain "...)
		e.buf = append(e.buf, d.ID...)
		e.buf = append(e.buf, " \""...)
		e.buf = append(e.buf, d.Name...)
		e.buf = append(e.buf, '"', '\n')
		for _, t := range d.Topics {
			e.buf = append(e.buf, "topic "...)
			e.buf = append(e.buf, t.ID...)
			e.buf = append(e.buf, ' ')
			e.buf = append(e.buf, d.ID...)
			e.buf = append(e.buf, " \""...)
			e.buf = append(e.buf, t.Name...)
			e.buf = append(e.buf, '"', '\n')
		}
	}

	for _, u := range cfg.Users {
		e.buf = append(e.buf, "user "...)
		e.buf = append(e.buf, u.ID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, u.Email...)
		if u.Role != "" && u.Role != RoleStudent {
			e.buf = append(e.buf, " role:"...)
			e.buf = append(e.buf, string(u.Role)...)
		}
		if u.Status != "" && u.Status != StatusActive {
			e.buf = append(e.buf, " status:"...)
			e.buf = append(e.buf, string(u.Status)...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, item := range cfg.Lessons {
		e.buf = append(e.buf, "lesson "...)
		e.buf = append(e.buf, item.ID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, item.DomainID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, item.TopicID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(item.Date.Year), 10)...)
		e.buf = append(e.buf, '/')
		e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(item.Date.Month), 10)...)
		e.buf = append(e.buf, '/')
		e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(item.Date.Day), 10)...)
		e.buf = append(e.buf, " \""...)
		e.buf = append(e.buf, item.Title...)
		e.buf = append(e.buf, '"', '\n')
	}

	for _, g := range cfg.Grants {
		e.buf = append(e.buf, "grant "...)
		e.buf = append(e.buf, g.UserID...)
		e.buf = append(e.buf, ' ')
		e.buf = appendOptID(e.buf, g.DomainID)
		e.buf = append(e.buf, ' ')
		e.buf = appendOptID(e.buf, g.TopicID)
		e.buf = append(e.buf, ' ')
		e.buf = appendOptNum(e.buf, g.Year, tmp[:0])
		e.buf = append(e.buf, '/')
		e.buf = appendOptNum(e.buf, g.Month, tmp[:0])
		e.buf = append(e.buf, '/')
		e.buf = appendOptNum(e.buf, g.Day, tmp[:0])
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(g.DurationDays), 10)...)
		e.buf = append(e.buf, 'd')
		if g.GrantedBy != "" {
			e.buf = append(e.buf, " by:"...)
			e.buf = append(e.buf, g.GrantedBy...)
		}
		e.buf = append(e.buf, '\n')
	}

	ec := cfg.Engine
	if ec.AuditBufferSize > 0 || ec.SweepIntervalMs > 0 || ec.RuleCacheNumCounters > 0 {
		e.buf = append(e.buf, "engine"...)
		if ec.AuditBufferSize > 0 {
			e.buf = append(e.buf, " audit_buffer="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(ec.AuditBufferSize), 10)...)
		}
		if ec.SweepIntervalMs > 0 {
			e.buf = append(e.buf, " sweep_interval="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], ec.SweepIntervalMs, 10)...)
		}
		if ec.RuleCacheNumCounters > 0 {
			e.buf = append(e.buf, " cache_counters="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], ec.RuleCacheNumCounters, 10)...)
		}
		if ec.RuleCacheMaxCost > 0 {
			e.buf = append(e.buf, " cache_cost="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], ec.RuleCacheMaxCost, 10)...)
		}
		if ec.RuleCacheBuffer > 0 {
			e.buf = append(e.buf, " cache_buffer="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], ec.RuleCacheBuffer, 10)...)
		}
		e.buf = append(e.buf, '\n')
	}

	return e.buf, nil
}

func appendOptID(buf []byte, id *string) []byte {
	if id == nil {
		return append(buf, '*')
	}
	return append(buf, *id...)
}

func appendOptNum(buf []byte, n *int, tmp []byte) []byte {
	if n == nil {
		return append(buf, '*')
	}
	return append(buf, strconv.AppendInt(tmp, int64(*n), 10)...)
}

func (p *DSLParser) Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Version: 1,
		Domains: make([]DomainConfig, 0, 8),
		Users:   make([]*User, 0, 8),
		Lessons: make([]*ContentItem, 0, 16),
		Grants:  make([]GrantRequest, 0, 16),
	}

	p.line = 0
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			p.line++
			line := data[start:i]
			start = i + 1

			for len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
				line = line[1:]
			}
			for len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t' || line[len(line)-1] == '\r') {
				line = line[:len(line)-1]
			}

			if len(line) == 0 || line[0] == '#' {
				continue
			}

			parts := splitLineBytes(line)
			if len(parts) == 0 {
				continue
			}

			switch parts[0] {
			case "domain":
				if err := p.parseDomain(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "topic":
				if err := p.parseTopic(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "user":
				if err := p.parseUser(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "lesson":
				if err := p.parseLesson(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "grant":
				if err := p.parseGrant(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "engine":
				if err := p.parseEngine(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			default:
				return nil, fmt.Errorf("line %d: unknown directive: %s", p.line, parts[0])
			}
		}
	}

	return cfg, nil
}

func splitLineBytes(line []byte) []string {
	parts := make([]string, 0, 8)
	var start int
	inQuote := false
	i := 0

	for i < len(line) {
		ch := line[i]
		if ch == '"' {
			if inQuote {
				parts = append(parts, string(line[start:i]))
				start = i + 1
				inQuote = false
			} else {
				start = i + 1
				inQuote = true
			}
		} else if (ch == ' ' || ch == '\t') && !inQuote {
			if i > start {
				parts = append(parts, string(line[start:i]))
			}
			start = i + 1
		}
		i++
	}

	if start < len(line) {
		parts = append(parts, string(line[start:]))
	}

	return parts
}

func (p *DSLParser) parseDomain(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("domain requires: <id> <name>")
	}
	cfg.Domains = append(cfg.Domains, DomainConfig{ID: parts[0], Name: parts[1]})
	return nil
}

func (p *DSLParser) parseTopic(cfg *Config, parts []string) error {
	if len(parts) < 3 {
		return fmt.Errorf("topic requires: <id> <domain> <name>")
	}
	for i := range cfg.Domains {
		if cfg.Domains[i].ID == parts[1] {
			cfg.Domains[i].Topics = append(cfg.Domains[i].Topics, TopicConfig{ID: parts[0], Name: parts[2]})
			return nil
		}
	}
	return fmt.Errorf("topic %s: unknown domain %s", parts[0], parts[1])
}

func (p *DSLParser) parseUser(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("user requires: <id> <email> [role:<role>] [status:<status>]")
	}
	u := &User{ID: parts[0], Email: parts[1], Role: RoleStudent, Status: StatusActive}
	for _, opt := range parts[2:] {
		if strings.HasPrefix(opt, "role:") {
			u.Role = UserRole(opt[5:])
		} else if strings.HasPrefix(opt, "status:") {
			u.Status = UserStatus(opt[7:])
		}
	}
	cfg.Users = append(cfg.Users, u)
	return nil
}

func (p *DSLParser) parseLesson(cfg *Config, parts []string) error {
	if len(parts) < 5 {
		return fmt.Errorf("lesson requires: <id> <domain> <topic> <y>/<m>/<d> <title>")
	}
	date, err := parseLessonDate(parts[3])
	if err != nil {
		return fmt.Errorf("lesson %s: %w", parts[0], err)
	}
	cfg.Lessons = append(cfg.Lessons, &ContentItem{
		ID:       parts[0],
		DomainID: parts[1],
		TopicID:  parts[2],
		Date:     date,
		Title:    parts[4],
	})
	return nil
}

func (p *DSLParser) parseGrant(cfg *Config, parts []string) error {
	if len(parts) < 5 {
		return fmt.Errorf("grant requires: <user> <domain|*> <topic|*> <y|*>/<m|*>/<d|*> <n>d [by:<id>]")
	}
	g := GrantRequest{UserID: parts[0]}
	if parts[1] != "*" {
		id := parts[1]
		g.DomainID = &id
	}
	if parts[2] != "*" {
		id := parts[2]
		g.TopicID = &id
	}

	comps := strings.Split(parts[3], "/")
	if len(comps) != 3 {
		return fmt.Errorf("grant %s: date must be <y|*>/<m|*>/<d|*>", parts[0])
	}
	var err error
	if g.Year, err = parseOptComponent(comps[0]); err != nil {
		return fmt.Errorf("grant %s: %w", parts[0], err)
	}
	if g.Month, err = parseOptComponent(comps[1]); err != nil {
		return fmt.Errorf("grant %s: %w", parts[0], err)
	}
	if g.Day, err = parseOptComponent(comps[2]); err != nil {
		return fmt.Errorf("grant %s: %w", parts[0], err)
	}

	dur := parts[4]
	if !strings.HasSuffix(dur, "d") {
		return fmt.Errorf("grant %s: duration must end with 'd'", parts[0])
	}
	if g.DurationDays, err = strconv.Atoi(dur[:len(dur)-1]); err != nil {
		return fmt.Errorf("grant %s: bad duration %q", parts[0], dur)
	}

	for _, opt := range parts[5:] {
		if strings.HasPrefix(opt, "by:") {
			g.GrantedBy = opt[3:]
		}
	}

	cfg.Grants = append(cfg.Grants, g)
	return nil
}

func (p *DSLParser) parseEngine(cfg *Config, parts []string) error {
	for _, kv := range parts {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return fmt.Errorf("engine option must be key=value: %s", kv)
		}
		key, val := kv[:eq], kv[eq+1:]
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("engine %s: bad value %q", key, val)
		}
		switch key {
		case "audit_buffer":
			cfg.Engine.AuditBufferSize = int(n)
		case "sweep_interval":
			cfg.Engine.SweepIntervalMs = n
		case "cache_counters":
			cfg.Engine.RuleCacheNumCounters = n
		case "cache_cost":
			cfg.Engine.RuleCacheMaxCost = n
		case "cache_buffer":
			cfg.Engine.RuleCacheBuffer = n
		default:
			return fmt.Errorf("unknown engine option: %s", key)
		}
	}
	return nil
}

func parseLessonDate(s string) (LessonDate, error) {
	comps := strings.Split(s, "/")
	if len(comps) != 3 {
		return LessonDate{}, fmt.Errorf("date must be <y>/<m>/<d>: %s", s)
	}
	y, err := strconv.Atoi(comps[0])
	if err != nil {
		return LessonDate{}, fmt.Errorf("bad year %q", comps[0])
	}
	m, err := strconv.Atoi(comps[1])
	if err != nil {
		return LessonDate{}, fmt.Errorf("bad month %q", comps[1])
	}
	d, err := strconv.Atoi(comps[2])
	if err != nil {
		return LessonDate{}, fmt.Errorf("bad day %q", comps[2])
	}
	return LessonDate{Year: y, Month: m, Day: d}, nil
}

func parseOptComponent(s string) (*int, error) {
	if s == "*" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("bad date component %q", s)
	}
	return &n, nil
}
