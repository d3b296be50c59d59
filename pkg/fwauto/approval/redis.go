package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix namespaces ticket hashes: FWAUTO_APPROVAL|<id>.
const KeyPrefix = "FWAUTO_APPROVAL|"

// RedisStore keeps one hash per ticket with the ticket's TTL, so several
// CLI invocations can share pending approvals.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis connects to addr/db and verifies the connection.
func DialRedis(ctx context.Context, addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to approval store %s: %w", addr, err)
	}
	return NewRedisStore(client), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func key(id string) string {
	return KeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, t *Ticket) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("ticket id is required")
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("ticket %s is already expired", t.ID)
	}

	args := append([]interface{}{ttl.Milliseconds()}, ticketFields(t)...)
	created, err := createScript.Run(ctx, s.client, []string{key(t.ID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("storing ticket %s: %w", t.ID, err)
	}
	if created == 0 {
		return fmt.Errorf("ticket %s already exists", t.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Ticket, error) {
	vals, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading ticket %s: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return parseTicket(vals), nil
}

// createScript writes every ticket field and the expiry in one step.
// ARGV[1] is the TTL in milliseconds, the rest are field/value pairs.
// Returns 1 on success, 0 if the ticket already exists.
var createScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, unpack(ARGV, 2))
redis.call("PEXPIRE", key, ARGV[1])
return 1
`)

// decideScript records a decision only on a pending ticket.
// Returns 1 on success, 0 if already decided, -1 if the ticket is gone.
var decideScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
if redis.call("HGET", key, "state") ~= "pending" then
	return 0
end
redis.call("HSET", key, "state", ARGV[1], "decided_by", ARGV[2], "reason", ARGV[3], "decided_at", ARGV[4])
return 1
`)

func (s *RedisStore) Decide(ctx context.Context, id string, d Decision) (*Ticket, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := decideScript.Run(ctx, s.client, []string{key(id)},
		string(d.state()), d.By, d.Reason, now).Int()
	if err != nil {
		return nil, fmt.Errorf("deciding ticket %s: %w", id, err)
	}
	switch result {
	case -1:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDecided, id)
	}
	return s.Get(ctx, id)
}

func ticketFields(t *Ticket) []interface{} {
	return []interface{}{
		"id", t.ID,
		"subject", t.Subject,
		"summary", t.Summary,
		"payload", t.Payload,
		"requested_by", t.RequestedBy,
		"created_at", formatTime(t.CreatedAt),
		"expires_at", formatTime(t.ExpiresAt),
		"state", string(t.State),
		"decided_by", t.DecidedBy,
		"reason", t.Reason,
		"decided_at", formatTime(t.DecidedAt),
	}
}

func parseTicket(vals map[string]string) *Ticket {
	t := &Ticket{
		ID:          vals["id"],
		Subject:     vals["subject"],
		Summary:     vals["summary"],
		Payload:     vals["payload"],
		RequestedBy: vals["requested_by"],
		CreatedAt:   parseTime(vals["created_at"]),
		ExpiresAt:   parseTime(vals["expires_at"]),
		State:       State(vals["state"]),
		DecidedBy:   vals["decided_by"],
		Reason:      vals["reason"],
		DecidedAt:   parseTime(vals["decided_at"]),
	}
	if t.State == "" {
		t.State = StatePending
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
