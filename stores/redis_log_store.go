package stores

import (
	"context"
	"encoding/json"

	"github.com/avrkr/asteriskace"
	"github.com/redis/go-redis/v9"
)

// RedisLogStore keeps the access log as a Redis list of JSON entries
// (key: acclog). Append order is preserved; filtering happens in-process
// after an LRANGE.
type RedisLogStore struct {
	client *redis.Client
	key    string
}

func NewRedisLogStore(client *redis.Client) *RedisLogStore {
	return &RedisLogStore{client: client, key: "acclog"}
}

func (r *RedisLogStore) AppendEntry(ctx context.Context, entry *asteriskace.LogEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, r.key, b).Err()
}

func (r *RedisLogStore) ListEntries(ctx context.Context, filter asteriskace.LogFilter) ([]*asteriskace.LogEntry, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*asteriskace.LogEntry, 0)
	for _, item := range raw {
		entry := &asteriskace.LogEntry{}
		if err := json.Unmarshal([]byte(item), entry); err != nil {
			continue
		}
		if !matchesLogFilter(entry, filter) {
			continue
		}
		out = append(out, entry)
		if len(out) >= logQueryLimit(filter) {
			break
		}
	}
	return out, nil
}
