// Package stream binds the broker operations used by the worker pool to Redis streams.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stiffinWanjohi/streampool/internal/domain"
	"github.com/stiffinWanjohi/streampool/internal/logging"
	"github.com/stiffinWanjohi/streampool/internal/observability"
)

var log = logging.Component("stream")

const (
	// StartNew positions a new group after the last entry of the stream.
	StartNew = "$"

	// Default number of entries returned by one range page.
	defaultPageSize = 1000
)

// Client performs stream operations against a Redis connection handle.
// It holds no state besides the handle, so one Client is shared by all consumers.
type Client struct {
	rdb     *redis.Client
	metrics *observability.Metrics
}

// NewClient wraps an existing Redis client.
func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// WithMetrics sets a metrics provider for command timings.
func (c *Client) WithMetrics(metrics *observability.Metrics) *Client {
	return &Client{rdb: c.rdb, metrics: metrics}
}

// Redis returns the underlying connection handle.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ClaimArgs describes a group read of new entries.
type ClaimArgs struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration
}

// AutoClaimArgs describes a transfer of idle pending entries to a consumer.
type AutoClaimArgs struct {
	Stream   string
	Group    string
	Consumer string
	MinIdle  time.Duration
	Start    string
	Count    int64
}

// PendingSummary is the group's unacknowledged set.
type PendingSummary struct {
	Count     int64
	Lowest    string
	Highest   string
	Consumers map[string]int64
}

// CreateGroup creates the consumer group, creating the stream when missing.
// An existing group is not an error: created reports false and err is nil.
func (c *Client) CreateGroup(ctx context.Context, stream, group, start string) (bool, error) {
	defer c.observe(ctx, "xgroup_create", time.Now())

	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err == nil {
		return true, nil
	}
	if IsBusyGroup(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: group %s on %s: %v", domain.ErrGroupCreateFailed, group, stream, err)
}

// IsBusyGroup reports whether err is Redis' "group already exists" reply.
func IsBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// IsNoGroup reports whether err is Redis' "no such group or stream" reply.
func IsNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}

// Claim reads up to Count entries never delivered to any consumer of the group,
// blocking up to Block for one to arrive. Returns domain.ErrNoMessages on timeout.
func (c *Client) Claim(ctx context.Context, args ClaimArgs) ([]domain.Entry, error) {
	defer c.observe(ctx, "xreadgroup", time.Now())

	count := args.Count
	if count <= 0 {
		count = 1
	}

	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    args.Group,
		Consumer: args.Consumer,
		Streams:  []string{args.Stream, ">"},
		Count:    count,
		Block:    args.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNoMessages
	}
	if err != nil {
		return nil, err
	}

	var entries []domain.Entry
	for _, s := range res {
		entries = append(entries, toEntries(s.Messages)...)
	}
	if len(entries) == 0 {
		return nil, domain.ErrNoMessages
	}
	return entries, nil
}

// Append adds an entry with a broker-assigned id and returns that id.
func (c *Client) Append(ctx context.Context, stream string, fields map[string]any) (string, error) {
	defer c.observe(ctx, "xadd", time.Now())

	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: fields,
	}).Result()
}

// AppendBatch adds one entry per element of batch in a single pipeline and
// returns the assigned ids in order.
func (c *Client) AppendBatch(ctx context.Context, stream string, batch []map[string]any) ([]string, error) {
	defer c.observe(ctx, "xadd_pipeline", time.Now())

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(batch))
	for i, fields := range batch {
		cmds[i] = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			ID:     "*",
			Values: fields,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, len(cmds))
	for i, cmd := range cmds {
		ids[i] = cmd.Val()
	}
	return ids, nil
}

// Ack removes entries from the group's pending set and returns how many were removed.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	defer c.observe(ctx, "xack", time.Now())

	return c.rdb.XAck(ctx, stream, group, ids...).Result()
}

// Range returns up to count entries with ids in [start, end]. count <= 0 means no limit.
func (c *Client) Range(ctx context.Context, stream, start, end string, count int64) ([]domain.Entry, error) {
	defer c.observe(ctx, "xrange", time.Now())

	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = c.rdb.XRangeN(ctx, stream, start, end, count).Result()
	} else {
		msgs, err = c.rdb.XRange(ctx, stream, start, end).Result()
	}
	if err != nil {
		return nil, err
	}
	return toEntries(msgs), nil
}

// Scan walks the whole stream from the first to the last entry in pages,
// calling fn once per non-empty page. A missing stream yields no pages.
func (c *Client) Scan(ctx context.Context, stream string, pageSize int64, fn func([]domain.Entry) error) error {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	start := "-"
	for {
		page, err := c.Range(ctx, stream, start, "+", pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if int64(len(page)) < pageSize {
			return nil
		}

		last, err := domain.ParseEntryID(page[len(page)-1].ID)
		if err != nil {
			return err
		}
		start = last.Next().String()
	}
}

// Len returns the number of entries in the stream.
func (c *Client) Len(ctx context.Context, stream string) (int64, error) {
	return c.rdb.XLen(ctx, stream).Result()
}

// Pending returns the summary of the group's unacknowledged entries.
func (c *Client) Pending(ctx context.Context, stream, group string) (PendingSummary, error) {
	defer c.observe(ctx, "xpending", time.Now())

	p, err := c.rdb.XPending(ctx, stream, group).Result()
	if err != nil {
		return PendingSummary{}, err
	}
	return PendingSummary{
		Count:     p.Count,
		Lowest:    p.Lower,
		Highest:   p.Higher,
		Consumers: p.Consumers,
	}, nil
}

// AutoClaim transfers pending entries idle for at least MinIdle to Consumer.
// It returns the claimed entries and the cursor for the next call ("0-0" when done).
func (c *Client) AutoClaim(ctx context.Context, args AutoClaimArgs) ([]domain.Entry, string, error) {
	defer c.observe(ctx, "xautoclaim", time.Now())

	start := args.Start
	if start == "" {
		start = "0-0"
	}

	msgs, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   args.Stream,
		Group:    args.Group,
		Consumer: args.Consumer,
		MinIdle:  args.MinIdle,
		Start:    start,
		Count:    args.Count,
	}).Result()
	if err != nil {
		return nil, "", err
	}
	return toEntries(msgs), next, nil
}

func (c *Client) observe(ctx context.Context, command string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RedisCommandDuration(ctx, command, time.Since(start))
	}
}

func toEntries(msgs []redis.XMessage) []domain.Entry {
	entries := make([]domain.Entry, 0, len(msgs))
	for _, m := range msgs {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case nil:
				// deleted entries come back from XAUTOCLAIM without values
			default:
				fields[k] = fmt.Sprint(val)
			}
		}
		entries = append(entries, domain.Entry{ID: m.ID, Fields: fields})
	}
	return entries
}
