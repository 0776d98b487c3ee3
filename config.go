package asteriskace

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes a complete portal seed: catalog, accounts, grants and
// engine settings. It round-trips through YAML, JSON, a line DSL and a
// compact binary format.
type Config struct {
	Version uint16         `json:"version" yaml:"version"`
	Domains []DomainConfig `json:"domains,omitempty" yaml:"domains,omitempty"`
	Users   []*User        `json:"users,omitempty" yaml:"users,omitempty"`
	Lessons []*ContentItem `json:"lessons,omitempty" yaml:"lessons,omitempty"`
	Grants  []GrantRequest `json:"grants,omitempty" yaml:"grants,omitempty"`
	Engine  EngineConfig   `json:"engine" yaml:"engine"`
}

// DomainConfig nests a domain's topics under it
type DomainConfig struct {
	ID     string        `json:"id" yaml:"id"`
	Name   string        `json:"name" yaml:"name"`
	Topics []TopicConfig `json:"topics,omitempty" yaml:"topics,omitempty"`
}

type TopicConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// EngineConfig carries tunables for the engine and sweeper
type EngineConfig struct {
	AuditBufferSize      int   `json:"audit_buffer_size,omitempty" yaml:"audit_buffer_size,omitempty"`
	SweepIntervalMs      int64 `json:"sweep_interval_ms,omitempty" yaml:"sweep_interval_ms,omitempty"`
	RuleCacheNumCounters int64 `json:"rule_cache_num_counters,omitempty" yaml:"rule_cache_num_counters,omitempty"`
	RuleCacheMaxCost     int64 `json:"rule_cache_max_cost,omitempty" yaml:"rule_cache_max_cost,omitempty"`
	RuleCacheBuffer      int64 `json:"rule_cache_buffer,omitempty" yaml:"rule_cache_buffer,omitempty"`
}

// EngineOptions converts the engine section into construction options
func (c *Config) EngineOptions() []EngineOption {
	opts := make([]EngineOption, 0)
	if c.Engine.AuditBufferSize > 0 {
		opts = append(opts, WithAuditBufferSize(c.Engine.AuditBufferSize))
	}
	if c.Engine.RuleCacheNumCounters > 0 {
		buffer := c.Engine.RuleCacheBuffer
		if buffer <= 0 {
			buffer = 64
		}
		opts = append(opts, WithRuleCacheConfig(c.Engine.RuleCacheNumCounters, c.Engine.RuleCacheMaxCost, buffer))
	}
	return opts
}

// SweepInterval returns the configured sweep period, or zero when unset
func (c *Config) SweepInterval() time.Duration {
	if c.Engine.SweepIntervalMs <= 0 {
		return 0
	}
	return time.Duration(c.Engine.SweepIntervalMs) * time.Millisecond
}

// ConfigLoader loads configuration from the supported formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBinary loads from the compact binary protocol
func (l *ConfigLoader) LoadBinary(data []byte) (*Config, error) {
	r := bytes.NewReader(data)
	return decodeBinaryConfig(r)
}

// EncodeBinaryConfig encodes config to binary format
func EncodeBinaryConfig(cfg *Config) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeBinaryConfig(cfg, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.Marshal(c)
}

// Validate checks referential integrity before a config touches any store
func (c *Config) Validate() error {
	domains := make(map[string]bool, len(c.Domains))
	topicDomain := make(map[string]string)
	for _, d := range c.Domains {
		if d.ID == "" {
			return fmt.Errorf("domain with empty id")
		}
		if domains[d.ID] {
			return fmt.Errorf("duplicate domain id %q", d.ID)
		}
		domains[d.ID] = true
		for _, t := range d.Topics {
			if t.ID == "" {
				return fmt.Errorf("domain %q: topic with empty id", d.ID)
			}
			if _, dup := topicDomain[t.ID]; dup {
				return fmt.Errorf("duplicate topic id %q", t.ID)
			}
			topicDomain[t.ID] = d.ID
		}
	}

	users := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		if u.ID == "" {
			return fmt.Errorf("user with empty id")
		}
		users[u.ID] = true
	}

	for _, item := range c.Lessons {
		if !domains[item.DomainID] {
			return fmt.Errorf("lesson %q: unknown domain %q", item.ID, item.DomainID)
		}
		if topicDomain[item.TopicID] != item.DomainID {
			return fmt.Errorf("lesson %q: topic %q is not in domain %q", item.ID, item.TopicID, item.DomainID)
		}
	}

	for i, g := range c.Grants {
		if g.UserID == "" {
			return fmt.Errorf("grant #%d: user id is required", i)
		}
		if !users[g.UserID] {
			return fmt.Errorf("grant #%d: unknown user %q", i, g.UserID)
		}
		if g.DurationDays <= 0 {
			return fmt.Errorf("grant #%d: %w", i, ErrInvalidDuration)
		}
		if g.TopicID != nil {
			if g.DomainID == nil {
				return fmt.Errorf("grant #%d: %w", i, ErrInvalidScope)
			}
			if topicDomain[*g.TopicID] != *g.DomainID {
				return fmt.Errorf("grant #%d: topic %q is not in domain %q: %w", i, *g.TopicID, *g.DomainID, ErrInvalidScope)
			}
		} else if g.DomainID != nil && !domains[*g.DomainID] {
			return fmt.Errorf("grant #%d: unknown domain %q", i, *g.DomainID)
		}
		if g.Month != nil && (*g.Month < 1 || *g.Month > 12) {
			return fmt.Errorf("grant #%d: %w", i, ErrInvalidDate)
		}
		if g.Day != nil && (*g.Day < 1 || *g.Day > 31) {
			return fmt.Errorf("grant #%d: %w", i, ErrInvalidDate)
		}
	}
	return nil
}

// Binary protocol encoding/decoding
const (
	binaryMagic   = 0x4141 // "AA" for asterisk-ace
	binaryVersion = 1
)

func encodeBinaryConfig(cfg *Config, w io.Writer) error {
	buf := &bytes.Buffer{}

	// Header: magic(2) + version(2) + config_version(2)
	binary.Write(buf, binary.LittleEndian, uint16(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	binary.Write(buf, binary.LittleEndian, cfg.Version)

	// Encode sections with type tags
	writeSection(buf, 0x01, func(b *bytes.Buffer) { encodeDomains(b, cfg.Domains) })
	writeSection(buf, 0x02, func(b *bytes.Buffer) { encodeUsers(b, cfg.Users) })
	writeSection(buf, 0x03, func(b *bytes.Buffer) { encodeLessons(b, cfg.Lessons) })
	writeSection(buf, 0x04, func(b *bytes.Buffer) { encodeGrants(b, cfg.Grants) })
	writeSection(buf, 0x05, func(b *bytes.Buffer) { encodeEngineConfig(b, &cfg.Engine) })

	_, err := w.Write(buf.Bytes())
	return err
}

func decodeBinaryConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}

	var magic, ver, cfgVer uint16
	binary.Read(r, binary.LittleEndian, &magic)
	binary.Read(r, binary.LittleEndian, &ver)
	binary.Read(r, binary.LittleEndian, &cfgVer)

	if magic != binaryMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	if ver != binaryVersion {
		return nil, fmt.Errorf("unsupported version: %d", ver)
	}
	cfg.Version = cfgVer

	for {
		var tag uint8
		if err := binary.Read(r, binary.LittleEndian, &tag); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		var size uint32
		binary.Read(r, binary.LittleEndian, &size)
		data := make([]byte, size)
		io.ReadFull(r, data)

		switch tag {
		case 0x01:
			cfg.Domains = decodeDomains(data)
		case 0x02:
			cfg.Users = decodeUsers(data)
		case 0x03:
			cfg.Lessons = decodeLessons(data)
		case 0x04:
			cfg.Grants = decodeGrants(data)
		case 0x05:
			cfg.Engine = decodeEngineConfig(data)
		}
	}

	return cfg, nil
}

func writeSection(buf *bytes.Buffer, tag uint8, fn func(*bytes.Buffer)) {
	tmp := &bytes.Buffer{}
	fn(tmp)
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, uint32(tmp.Len()))
	buf.Write(tmp.Bytes())
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) string {
	var l uint16
	binary.Read(r, binary.LittleEndian, &l)
	b := make([]byte, l)
	r.Read(b)
	return string(b)
}

// Optional values carry a presence byte ahead of the payload
func writeOptString(buf *bytes.Buffer, s *string) {
	if s == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeString(buf, *s)
}

func readOptString(r *bytes.Reader) *string {
	set, _ := r.ReadByte()
	if set == 0 {
		return nil
	}
	s := readString(r)
	return &s
}

func writeOptInt(buf *bytes.Buffer, n *int) {
	if n == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	binary.Write(buf, binary.LittleEndian, int32(*n))
}

func readOptInt(r *bytes.Reader) *int {
	set, _ := r.ReadByte()
	if set == 0 {
		return nil
	}
	var v int32
	binary.Read(r, binary.LittleEndian, &v)
	n := int(v)
	return &n
}

func encodeDomains(buf *bytes.Buffer, domains []DomainConfig) {
	binary.Write(buf, binary.LittleEndian, uint16(len(domains)))
	for _, d := range domains {
		writeString(buf, d.ID)
		writeString(buf, d.Name)
		binary.Write(buf, binary.LittleEndian, uint16(len(d.Topics)))
		for _, t := range d.Topics {
			writeString(buf, t.ID)
			writeString(buf, t.Name)
		}
	}
}

func decodeDomains(data []byte) []DomainConfig {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	domains := make([]DomainConfig, count)
	for i := range domains {
		domains[i].ID = readString(r)
		domains[i].Name = readString(r)
		var tc uint16
		binary.Read(r, binary.LittleEndian, &tc)
		domains[i].Topics = make([]TopicConfig, tc)
		for j := range domains[i].Topics {
			domains[i].Topics[j].ID = readString(r)
			domains[i].Topics[j].Name = readString(r)
		}
	}
	return domains
}

func encodeUsers(buf *bytes.Buffer, users []*User) {
	binary.Write(buf, binary.LittleEndian, uint16(len(users)))
	for _, u := range users {
		writeString(buf, u.ID)
		writeString(buf, u.Email)
		writeString(buf, string(u.Role))
		writeString(buf, string(u.Status))
	}
}

func decodeUsers(data []byte) []*User {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	users := make([]*User, count)
	for i := range users {
		users[i] = &User{
			ID:     readString(r),
			Email:  readString(r),
			Role:   UserRole(readString(r)),
			Status: UserStatus(readString(r)),
		}
	}
	return users
}

func encodeLessons(buf *bytes.Buffer, lessons []*ContentItem) {
	binary.Write(buf, binary.LittleEndian, uint16(len(lessons)))
	for _, item := range lessons {
		writeString(buf, item.ID)
		writeString(buf, item.DomainID)
		writeString(buf, item.TopicID)
		writeString(buf, item.Title)
		binary.Write(buf, binary.LittleEndian, int32(item.Date.Year))
		binary.Write(buf, binary.LittleEndian, int32(item.Date.Month))
		binary.Write(buf, binary.LittleEndian, int32(item.Date.Day))
		binary.Write(buf, binary.LittleEndian, item.Size)
		writeString(buf, item.StorageKey)
	}
}

func decodeLessons(data []byte) []*ContentItem {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	lessons := make([]*ContentItem, count)
	for i := range lessons {
		item := &ContentItem{}
		item.ID = readString(r)
		item.DomainID = readString(r)
		item.TopicID = readString(r)
		item.Title = readString(r)
		var y, m, d int32
		binary.Read(r, binary.LittleEndian, &y)
		binary.Read(r, binary.LittleEndian, &m)
		binary.Read(r, binary.LittleEndian, &d)
		item.Date = LessonDate{Year: int(y), Month: int(m), Day: int(d)}
		binary.Read(r, binary.LittleEndian, &item.Size)
		item.StorageKey = readString(r)
		lessons[i] = item
	}
	return lessons
}

func encodeGrants(buf *bytes.Buffer, grants []GrantRequest) {
	binary.Write(buf, binary.LittleEndian, uint16(len(grants)))
	for _, g := range grants {
		writeString(buf, g.UserID)
		writeOptString(buf, g.DomainID)
		writeOptString(buf, g.TopicID)
		writeOptInt(buf, g.Year)
		writeOptInt(buf, g.Month)
		writeOptInt(buf, g.Day)
		binary.Write(buf, binary.LittleEndian, int32(g.DurationDays))
		writeString(buf, g.GrantedBy)
	}
}

func decodeGrants(data []byte) []GrantRequest {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	grants := make([]GrantRequest, count)
	for i := range grants {
		grants[i].UserID = readString(r)
		grants[i].DomainID = readOptString(r)
		grants[i].TopicID = readOptString(r)
		grants[i].Year = readOptInt(r)
		grants[i].Month = readOptInt(r)
		grants[i].Day = readOptInt(r)
		var dur int32
		binary.Read(r, binary.LittleEndian, &dur)
		grants[i].DurationDays = int(dur)
		grants[i].GrantedBy = readString(r)
	}
	return grants
}

func encodeEngineConfig(buf *bytes.Buffer, ec *EngineConfig) {
	binary.Write(buf, binary.LittleEndian, int32(ec.AuditBufferSize))
	binary.Write(buf, binary.LittleEndian, ec.SweepIntervalMs)
	binary.Write(buf, binary.LittleEndian, ec.RuleCacheNumCounters)
	binary.Write(buf, binary.LittleEndian, ec.RuleCacheMaxCost)
	binary.Write(buf, binary.LittleEndian, ec.RuleCacheBuffer)
}

func decodeEngineConfig(data []byte) EngineConfig {
	r := bytes.NewReader(data)
	var ec EngineConfig
	var abs int32
	binary.Read(r, binary.LittleEndian, &abs)
	ec.AuditBufferSize = int(abs)
	binary.Read(r, binary.LittleEndian, &ec.SweepIntervalMs)
	binary.Read(r, binary.LittleEndian, &ec.RuleCacheNumCounters)
	binary.Read(r, binary.LittleEndian, &ec.RuleCacheMaxCost)
	binary.Read(r, binary.LittleEndian, &ec.RuleCacheBuffer)
	return ec
}

// ApplyConfig validates the config and seeds the catalog, accounts and
// grants through the engine. Grants are created with their configured
// durations relative to the engine clock.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, d := range cfg.Domains {
		if err := e.catalog.CreateDomain(ctx, &Domain{ID: d.ID, Name: d.Name}); err != nil {
			return fmt.Errorf("create domain %q: %w", d.ID, err)
		}
		for _, t := range d.Topics {
			if err := e.catalog.CreateTopic(ctx, &Topic{ID: t.ID, DomainID: d.ID, Name: t.Name}); err != nil {
				return fmt.Errorf("create topic %q: %w", t.ID, err)
			}
		}
	}
	for _, u := range cfg.Users {
		if u.Role == "" {
			u.Role = RoleStudent
		}
		if u.Status == "" {
			u.Status = StatusActive
		}
		if err := e.catalog.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create user %q: %w", u.ID, err)
		}
	}
	for _, item := range cfg.Lessons {
		if err := e.catalog.CreateContentItem(ctx, item); err != nil {
			return fmt.Errorf("create lesson %q: %w", item.ID, err)
		}
	}
	for i, g := range cfg.Grants {
		if g.GrantedBy == "" {
			g.GrantedBy = "config"
		}
		if _, err := e.Grant(ctx, g); err != nil {
			return fmt.Errorf("grant #%d: %w", i, err)
		}
	}
	return nil
}
