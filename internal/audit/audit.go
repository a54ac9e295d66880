// Package audit 把快取通知批次寫入 PostgreSQL
//
// 系統設計重點：
//
//  1. 為什麼批次寫入？
//     每次 Add/Get/Delete 都會發布通知，逐筆 INSERT 會讓資料庫成為瓶頸。
//     通知先進緩衝 channel，由單一 worker 依數量或時間觸發 flush。
//
//  2. 背壓策略：
//     審計日誌不能拖慢快取操作。緩衝區滿時直接丟棄並計數，不阻塞 Publish。
//
//  3. 寫入失敗：
//     記日誌後丟棄該批，不重試。
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koopa0/system-design/route-cache/internal/cache"
)

// 預設值
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
)

// flushTimeout 單次 flush 的逾時
const flushTimeout = 5 * time.Second

const insertEvent = `
INSERT INTO cache_events (kind, op, key, message, size, ttl, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectRecent = `
SELECT id, kind, op, key, message, size, ttl, created_at
FROM cache_events
ORDER BY id DESC
LIMIT $1`

// Record 一筆審計記錄
type Record struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Op        string    `json:"op"`
	Key       string    `json:"key"`
	Message   string    `json:"message"`
	Size      int       `json:"size"`
	TTL       int       `json:"ttl"`
	CreatedAt time.Time `json:"created_at"`
}

// Options 審計設定
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	// BufferSize 預設為 BatchSize 的兩倍
	BufferSize int
	Logger     *slog.Logger
}

// Sink 審計日誌寫入器
type Sink struct {
	pool    *pgxpool.Pool
	opts    Options
	logger  *slog.Logger
	buffer  chan Record
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	written atomic.Int64
}

// NewSink 建立寫入器並啟動批次 worker
func NewSink(pool *pgxpool.Pool, opts Options) *Sink {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = opts.BatchSize * 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Sink{
		pool:   pool,
		opts:   opts,
		logger: opts.Logger,
		buffer: make(chan Record, opts.BufferSize),
	}

	s.wg.Add(1)
	go s.batchWorker()

	return s
}

// Listener 返回訂閱快取通知的函數
func (s *Sink) Listener() cache.Listener {
	return func(e cache.Event) {
		s.Enqueue(recordFromEvent(e))
	}
}

// Enqueue 放入緩衝區；已關閉或緩衝區滿時丟棄
func (s *Sink) Enqueue(r Record) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return false
	}

	select {
	case s.buffer <- r:
		return true
	default:
		if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
			s.logger.Warn("audit buffer full, dropping events", "dropped", n)
		}
		return false
	}
}

// Dropped 返回被丟棄的記錄數
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Written 返回已寫入的記錄數
func (s *Sink) Written() int64 {
	return s.written.Load()
}

// Close 停止接收並寫出剩餘的記錄
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.buffer)
	s.mu.Unlock()

	s.wg.Wait()
}

// batchWorker 批量寫入 worker
//
// 兩種觸發條件：達到 BatchSize 立即刷新，或每隔 FlushInterval 刷新。
func (s *Sink) batchWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, s.opts.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		err := s.insert(ctx, batch)
		cancel()

		if err != nil {
			s.logger.Error("failed to write audit batch", "records", len(batch), "error", err)
		} else {
			s.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-s.buffer:
			if !ok {
				// 通道已關閉，最後一次刷新並退出
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= s.opts.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// insert 以 pgx.Batch 一次送出
func (s *Sink) insert(ctx context.Context, records []Record) error {
	b := &pgx.Batch{}
	for _, r := range records {
		b.Queue(insertEvent, r.Kind, r.Op, r.Key, r.Message, r.Size, r.TTL, r.CreatedAt)
	}

	results := s.pool.SendBatch(ctx, b)
	var errs []error
	for range records {
		if _, err := results.Exec(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := results.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Recent 返回最新的 limit 筆記錄（新到舊）
func (s *Sink) Recent(ctx context.Context, limit int) ([]Record, error) {
	return Recent(ctx, s.pool, limit)
}

// Recent 查詢最新的審計記錄
func Recent(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := pool.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.Kind, &r.Op, &r.Key, &r.Message, &r.Size, &r.TTL, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan recent events: %w", err)
	}
	return records, nil
}

// recordFromEvent 通知轉為記錄；錯誤事件以錯誤訊息當 message
func recordFromEvent(e cache.Event) Record {
	r := Record{
		Kind:      string(e.Kind),
		Op:        e.Op,
		Key:       e.Key,
		Message:   e.Message,
		Size:      e.Size,
		TTL:       e.TTL,
		CreatedAt: e.Time,
	}
	if r.Message == "" && e.Err != nil {
		r.Message = e.Err.Error()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return r
}
