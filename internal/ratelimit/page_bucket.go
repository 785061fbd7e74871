// Package ratelimit meters batch submissions in pages per window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "staffcut:pages"

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// takePages refills the bucket by elapsed time, then takes ARGV[4] tokens if
// they are all there. Replies {allowed, remaining, retry_after_ms}.
var takePages = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "pages", "at")
local pages = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now_ms

local rate = capacity / window_ms
pages = math.min(capacity, pages + math.max(0, now_ms - at) * rate)

local allowed, wait_ms = 0, 0
if pages >= cost then
  pages = pages - cost
  allowed = 1
else
  wait_ms = math.ceil((cost - pages) / rate)
end

redis.call("HSET", KEYS[1], "pages", pages, "at", now_ms)
redis.call("PEXPIRE", KEYS[1], 2 * window_ms)
return {allowed, math.floor(pages), wait_ms}
`)

// PageBucket is a Redis token bucket where one token is one page. Every API
// replica shares the bucket state, keyed per subject.
type PageBucket struct {
	client    redis.UniversalClient
	pages     int64
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

// NewPageBucket allows pages per window for each subject.
func NewPageBucket(client redis.UniversalClient, pages int, window time.Duration, keyPrefix string) (*PageBucket, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if pages <= 0 {
		return nil, errors.New("page budget must be positive")
	}
	if window < time.Millisecond {
		return nil, errors.New("window must be at least 1ms")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &PageBucket{
		client:    client,
		pages:     int64(pages),
		window:    window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

// Take charges a batch of pages to subject. A batch larger than the whole
// budget is charged the full budget, so it waits for a full bucket instead of
// never fitting.
func (b *PageBucket) Take(ctx context.Context, subject string, pages int) (Decision, error) {
	reply, err := takePages.Run(ctx, b.client, []string{b.key(subject)},
		b.pages,
		b.window.Milliseconds(),
		b.now().UTC().UnixMilli(),
		b.cost(pages),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("take %d pages: %w", pages, err)
	}
	return decisionFromReply(reply)
}

func (b *PageBucket) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return b.keyPrefix + ":" + subject
}

func (b *PageBucket) cost(pages int) int64 {
	return min(max(int64(pages), 1), b.pages)
}

func decisionFromReply(reply []int64) (Decision, error) {
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("page bucket replied with %d values, want 3", len(reply))
	}
	return Decision{
		Allowed:    reply[0] == 1,
		Remaining:  reply[1],
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}
