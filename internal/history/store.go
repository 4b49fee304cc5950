// Package history keeps a rolling record of completed scans in Redis.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/tracelens/internal/risk"
)

const (
	keyPrefix = "tracelens:scan:"
	indexKey  = "tracelens:scans"
)

// ErrDisabled is returned by every operation of a disabled store.
var ErrDisabled = errors.New("scan history is disabled")

// Record is the summary kept for one scan.
type Record struct {
	ScanID          string      `json:"scan_id" yaml:"scan_id"`
	Target          string      `json:"target" yaml:"target"`
	StartedAt       time.Time   `json:"started_at" yaml:"started_at"`
	Files           int         `json:"files" yaml:"files"`
	Skipped         int         `json:"skipped" yaml:"skipped"`
	TotalEvents     int         `json:"total_events" yaml:"total_events"`
	Score           int         `json:"score" yaml:"score"`
	Label           risk.Label  `json:"label" yaml:"label"`
	BruteForce      bool        `json:"brute_force" yaml:"brute_force"`
	Counts          map[int]int `json:"counts" yaml:"counts"`
	TopTargetedUser string      `json:"top_targeted_user,omitempty" yaml:"top_targeted_user,omitempty"`
	TopSourceIP     string      `json:"top_source_ip,omitempty" yaml:"top_source_ip,omitempty"`
}

// NewRecord summarizes a scan result.
func NewRecord(scanID, target string, startedAt time.Time, files, skipped int, res risk.Result) Record {
	r := Record{
		ScanID:      scanID,
		Target:      target,
		StartedAt:   startedAt.UTC(),
		Files:       files,
		Skipped:     skipped,
		TotalEvents: res.TotalEvents,
		Score:       res.Score,
		Label:       res.Label,
		BruteForce:  res.BruteForceSuspected(),
		Counts:      res.Counts,
	}
	if res.TopTargetedUser != nil {
		r.TopTargetedUser = res.TopTargetedUser.Value
	}
	if res.TopSourceIP != nil {
		r.TopSourceIP = res.TopSourceIP.Value
	}
	return r
}

// Store saves scan records in Redis. Each record lives under its own key
// with a TTL and is indexed by start time in a sorted set.
type Store struct {
	redis     *redis.Client
	retention time.Duration
	enabled   bool
}

// NewStore creates a store. A zero retention keeps records forever.
func NewStore(client *redis.Client, retention time.Duration, enabled bool) *Store {
	return &Store{
		redis:     client,
		retention: retention,
		enabled:   enabled,
	}
}

// Connect parses a redis:// URL and returns an enabled store using it.
func Connect(ctx context.Context, url string, retention time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewStore(client, retention, true), nil
}

// IsEnabled returns whether the store is usable.
func (s *Store) IsEnabled() bool {
	return s.enabled && s.redis != nil
}

// Save stores r and indexes it.
func (s *Store) Save(ctx context.Context, r Record) error {
	if !s.IsEnabled() {
		return ErrDisabled
	}
	if r.ScanID == "" {
		return fmt.Errorf("record has no scan id")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, recordKey(r.ScanID), data, s.retention)
	pipe.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(r.StartedAt.UnixMilli()),
		Member: r.ScanID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get loads one record. It returns redis.Nil when the record is unknown or
// has expired.
func (s *Store) Get(ctx context.Context, scanID string) (*Record, error) {
	if !s.IsEnabled() {
		return nil, ErrDisabled
	}

	data, err := s.redis.Get(ctx, recordKey(scanID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &r, nil
}

// List returns up to limit records, newest first. Index entries whose record
// has expired are pruned.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if !s.IsEnabled() {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}

	records := make([]Record, 0, limit)
	var stale []any
	for offset := int64(0); len(records) < limit; {
		ids, err := s.redis.ZRevRange(ctx, indexKey, offset, offset+int64(limit)-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list scans: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		offset += int64(len(ids))

		for _, id := range ids {
			r, err := s.Get(ctx, id)
			if errors.Is(err, redis.Nil) {
				stale = append(stale, id)
				continue
			}
			if err != nil {
				return nil, err
			}
			records = append(records, *r)
			if len(records) == limit {
				break
			}
		}
	}

	if len(stale) > 0 {
		if err := s.redis.ZRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune index: %w", err)
		}
	}
	return records, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

func recordKey(scanID string) string {
	return keyPrefix + scanID
}
