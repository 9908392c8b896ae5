package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/quocanhngo/memento/internal/model"
	"github.com/redis/go-redis/v9"
)

// DeliveryLog is the append-only record of dispatches
type DeliveryLog interface {
	Append(ctx context.Context, records ...model.DeliveryRecord) error
	// Recent returns up to n records, newest first
	Recent(ctx context.Context, n int) ([]model.DeliveryRecord, error)
}

// ========== File ==========

// FileDeliveryLog appends one JSON object per line
type FileDeliveryLog struct {
	mu   sync.Mutex
	path string
}

func NewFileDeliveryLog(path string) (*FileDeliveryLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create delivery log directory: %w", err)
	}
	return &FileDeliveryLog{path: path}, nil
}

func (l *FileDeliveryLog) Append(_ context.Context, records ...model.DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (l *FileDeliveryLog) Recent(_ context.Context, n int) ([]model.DeliveryRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]model.DeliveryRecord, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec model.DeliveryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make([]model.DeliveryRecord, len(ring))
	for i, rec := range ring {
		out[len(ring)-1-i] = rec
	}
	return out, nil
}

// ========== Redis ==========

// RedisDeliveryLog keeps the newest records in a capped Redis list
type RedisDeliveryLog struct {
	rdb        *redis.Client
	key        string
	maxEntries int64
}

func NewRedisDeliveryLog(rdb *redis.Client, key string, maxEntries int64) *RedisDeliveryLog {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &RedisDeliveryLog{rdb: rdb, key: key, maxEntries: maxEntries}
}

func (l *RedisDeliveryLog) Append(ctx context.Context, records ...model.DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, l.key, values...)
	pipe.LTrim(ctx, l.key, 0, l.maxEntries-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *RedisDeliveryLog) Recent(ctx context.Context, n int) ([]model.DeliveryRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	raw, err := l.rdb.LRange(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.DeliveryRecord, 0, len(raw))
	for _, item := range raw {
		var rec model.DeliveryRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ========== Nop ==========

// NopDeliveryLog discards every record
type NopDeliveryLog struct{}

func (NopDeliveryLog) Append(context.Context, ...model.DeliveryRecord) error { return nil }

func (NopDeliveryLog) Recent(context.Context, int) ([]model.DeliveryRecord, error) {
	return nil, nil
}
