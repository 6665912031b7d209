package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror publishes presence changes to a store shared with other processes
// (inbox services, admin tools). The in-process Table stays authoritative.
type Mirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string, at time.Time) error
}

// NopMirror discards presence changes.
type NopMirror struct{}

func (NopMirror) Online(context.Context, string) error { return nil }

func (NopMirror) Offline(context.Context, string, time.Time) error { return nil }

const (
	defaultOnlineKey   = "wiredm:presence:online"
	defaultLastSeenKey = "wiredm:presence:last_seen"
)

// RedisMirror keeps an online set and a last-seen hash (unix millis) in Redis.
type RedisMirror struct {
	rdb         redis.UniversalClient
	onlineKey   string
	lastSeenKey string
}

// NewRedisMirror creates a mirror on the given client.
func NewRedisMirror(rdb redis.UniversalClient) *RedisMirror {
	return &RedisMirror{
		rdb:         rdb,
		onlineKey:   defaultOnlineKey,
		lastSeenKey: defaultLastSeenKey,
	}
}

// Online adds the user to the online set and clears its last-seen stamp.
func (m *RedisMirror) Online(ctx context.Context, userID string) error {
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, m.onlineKey, userID)
		pipe.HDel(ctx, m.lastSeenKey, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror online %s: %w", userID, err)
	}
	return nil
}

// Offline removes the user from the online set and stamps last-seen.
func (m *RedisMirror) Offline(ctx context.Context, userID string, at time.Time) error {
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, m.onlineKey, userID)
		pipe.HSet(ctx, m.lastSeenKey, userID, at.UnixMilli())
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror offline %s: %w", userID, err)
	}
	return nil
}

// Reset clears mirrored state. Called on startup since a fresh process has no sessions.
func (m *RedisMirror) Reset(ctx context.Context) error {
	if err := m.rdb.Del(ctx, m.onlineKey).Err(); err != nil {
		return fmt.Errorf("reset mirror: %w", err)
	}
	return nil
}

// Load reads the mirrored snapshot.
func (m *RedisMirror) Load(ctx context.Context) (Snapshot, error) {
	online, err := m.rdb.SMembers(ctx, m.onlineKey).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("load online set: %w", err)
	}
	raw, err := m.rdb.HGetAll(ctx, m.lastSeenKey).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("load last seen: %w", err)
	}

	sort.Strings(online)
	snap := Snapshot{Online: online, LastSeen: make(map[string]time.Time, len(raw))}
	for id, v := range raw {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		snap.LastSeen[id] = time.UnixMilli(ms).UTC()
	}
	return snap, nil
}
