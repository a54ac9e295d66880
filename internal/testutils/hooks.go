package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CommandCounter 記錄 Redis 命令呼叫次數的 hook
//
// 單一命令與 pipeline 內的命令都會計入。
type CommandCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCommandCounter 創建新的 CommandCounter
func NewCommandCounter() *CommandCounter {
	return &CommandCounter{counts: make(map[string]int)}
}

// Count 返回某個命令（不分大小寫）的呼叫次數
func (c *CommandCounter) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[strings.ToLower(name)]
}

// Reset 清空計數
func (c *CommandCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int)
}

func (c *CommandCounter) record(cmds ...redis.Cmder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cmd := range cmds {
		c.counts[strings.ToLower(cmd.Name())]++
	}
}

func (c *CommandCounter) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (c *CommandCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		c.record(cmd)
		return next(ctx, cmd)
	}
}

func (c *CommandCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		c.record(cmds...)
		return next(ctx, cmds)
	}
}

// FailingHook 讓指定命令失敗的 hook（錯誤注入）
//
// 命令照常送到 Redis，回來後再把錯誤寫進該命令；
// 用來模擬「前面的命令成功、後面的命令失敗」。
type FailingHook struct {
	mu      sync.Mutex
	command string
	err     error
}

// NewFailingHook 讓 command 回傳 err
func NewFailingHook(command string, err error) *FailingHook {
	return &FailingHook{command: strings.ToLower(command), err: err}
}

// Disable 停止注入
func (h *FailingHook) Disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = nil
}

func (h *FailingHook) injected() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *FailingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *FailingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if err := next(ctx, cmd); err != nil {
			return err
		}
		if injected := h.injected(); injected != nil && cmd.Name() == h.command {
			cmd.SetErr(injected)
			return injected
		}
		return nil
	}
}

func (h *FailingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if err := next(ctx, cmds); err != nil {
			return err
		}
		injected := h.injected()
		if injected == nil {
			return nil
		}
		for _, cmd := range cmds {
			if cmd.Name() == h.command {
				cmd.SetErr(injected)
			}
		}
		return nil
	}
}
