package cache

import (
	"log/slog"
	"sync"
	"time"
)

// EventKind 通知類型
type EventKind string

const (
	// EventMessage 描述一次寫入/讀取/刪除的診斷訊息
	EventMessage EventKind = "message"
	// EventError 儲存操作失敗（錯誤同時經由返回值交給呼叫者）
	EventError EventKind = "error"
	// EventConnected 與 Redis 的連線恢復
	EventConnected EventKind = "connected"
	// EventDisconnected 與 Redis 的連線中斷
	EventDisconnected EventKind = "disconnected"
)

// 操作名稱
const (
	OpAdd    = "add"
	OpGet    = "get"
	OpDelete = "delete"
	OpTag    = "tag"
	OpWatch  = "watch"
)

// Event 快取通知
//
// 只用於診斷（日誌、指標、審計），不屬於資料契約。
type Event struct {
	Kind    EventKind
	Op      string
	Key     string
	Message string
	Size    int // 估算大小（位元組），僅 add
	TTL     int // 秒，僅 add
	Count   int // 命中或刪除數量
	Err     error
	Time    time.Time
}

// Listener 訂閱者
type Listener func(Event)

// Notifier 發布/訂閱
//
// 並發安全。Publish 同步呼叫所有訂閱者，訂閱者須自行避免阻塞。
type Notifier struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener
	logger    *slog.Logger
}

// NewNotifier 建立通知器
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		listeners: make(map[uint64]Listener),
		logger:    logger,
	}
}

// Subscribe 訂閱通知，返回取消訂閱函數
func (n *Notifier) Subscribe(l Listener) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Publish 發布通知
func (n *Notifier) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	n.mu.RLock()
	listeners := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		listeners = append(listeners, l)
	}
	n.mu.RUnlock()

	for _, l := range listeners {
		n.deliver(l, e)
	}
}

// deliver 訂閱者 panic 不影響快取操作
func (n *Notifier) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("cache listener panicked", "panic", r, "kind", e.Kind, "op", e.Op)
		}
	}()
	l(e)
}

// Len 返回訂閱者數量
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// LogListener 以 slog 輸出通知
func LogListener(logger *slog.Logger) Listener {
	return func(e Event) {
		switch e.Kind {
		case EventError:
			logger.Error("cache error", "op", e.Op, "key", e.Key, "error", e.Err)
		case EventDisconnected:
			logger.Warn("cache disconnected", "error", e.Err)
		case EventConnected:
			logger.Info("cache connected")
		default:
			logger.Debug(e.Message, "op", e.Op, "key", e.Key)
		}
	}
}
