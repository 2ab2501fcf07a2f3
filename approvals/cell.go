package approvals

import (
	"context"
	"sync"

	"github.com/BaSui01/approvalflow/types"
)

// =============================================================================
// 📦 结果单元
// =============================================================================

// OutcomeCell 一次写入、多方观察的结果单元。
// 写入值后关闭 done，关闭之前读者看不到任何值。
type OutcomeCell struct {
	mu       sync.Mutex
	done     chan struct{}
	outcome  types.ApprovalOutcome
	resolved bool
}

// NewOutcomeCell 创建未终结的结果单元
func NewOutcomeCell() *OutcomeCell {
	return &OutcomeCell{done: make(chan struct{})}
}

// Resolve 写入结果。首个写入者生效，后续写入返回 ErrAlreadyResolved 且不改变已存值。
func (c *OutcomeCell) Resolve(outcome types.ApprovalOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return ErrAlreadyResolved
	}
	c.outcome = outcome
	c.resolved = true
	close(c.done)
	return nil
}

// Resolved 是否已写入
func (c *OutcomeCell) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Observe 返回等待句柄，可任意复制
func (c *OutcomeCell) Observe() Waiter {
	return Waiter{cell: c}
}

// =============================================================================
// ⏳ 等待句柄
// =============================================================================

// Waiter 结果单元的只读句柄，所有副本观察到同一个值
type Waiter struct {
	cell *OutcomeCell
}

// Done 结果写入后关闭的通道，便于 select
func (w Waiter) Done() <-chan struct{} {
	return w.cell.done
}

// Outcome 非阻塞读取结果
func (w Waiter) Outcome() (types.ApprovalOutcome, bool) {
	select {
	case <-w.cell.done:
		return w.cell.outcome, true
	default:
		return types.ApprovalOutcome{}, false
	}
}

// Wait 阻塞直到结果写入或 ctx 结束
func (w Waiter) Wait(ctx context.Context) (types.ApprovalOutcome, error) {
	select {
	case <-w.cell.done:
		return w.cell.outcome, nil
	case <-ctx.Done():
		return types.ApprovalOutcome{}, ctx.Err()
	}
}
