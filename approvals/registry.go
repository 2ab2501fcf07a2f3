package approvals

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/approvalflow/types"
)

// DefaultShards 默认分片数
const DefaultShards = 32

// PendingEntry 等待中的请求及其结果单元
type PendingEntry struct {
	Request types.ApprovalRequest
	Kind    types.ApprovalKind
	cell    *OutcomeCell
}

// NewPendingEntry 为请求创建条目
func NewPendingEntry(req types.ApprovalRequest, kind types.ApprovalKind) *PendingEntry {
	return &PendingEntry{Request: req, Kind: kind, cell: NewOutcomeCell()}
}

// Waiter 返回条目结果的等待句柄
func (e *PendingEntry) Waiter() Waiter {
	return e.cell.Observe()
}

// PendingApproval 列表视图
type PendingApproval struct {
	Request types.ApprovalRequest `json:"request"`
	Kind    types.ApprovalKind    `json:"kind"`
}

// ListFilter 列表过滤条件，零值字段不参与过滤
type ListFilter struct {
	ExecutionProcessID string
	Kind               types.ApprovalKind
}

func (f ListFilter) match(e *PendingEntry) bool {
	if f.ExecutionProcessID != "" && e.Request.ExecutionProcessID != f.ExecutionProcessID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}

// =============================================================================
// 🗂️ 分片注册表
// =============================================================================

// Registry 等待中请求的分片映射。每个分片独立加锁，锁内不做 I/O。
// 条目终结后立即移除，重复或迟到的响应得到 ErrNotFound。
type Registry struct {
	shards []*registryShard
}

type registryShard struct {
	mu      sync.Mutex
	entries map[string]*PendingEntry
}

// NewRegistry 创建注册表，shards <= 0 时使用 DefaultShards
func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{shards: make([]*registryShard, shards)}
	for i := range r.shards {
		r.shards[i] = &registryShard{entries: make(map[string]*PendingEntry)}
	}
	return r
}

func (r *Registry) shardFor(id string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Insert 插入条目，ID 已存在时返回 ErrDuplicateID
func (r *Registry) Insert(entry *PendingEntry) error {
	id := entry.Request.ID
	s := r.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	s.entries[id] = entry
	return nil
}

// Get 查找条目
func (r *Registry) Get(id string) (*PendingEntry, error) {
	s := r.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, nil
}

// ResolveAndRemove 原子地校验类型兼容性、写入结果并移除条目。
// 类型不兼容时条目保持不变。
func (r *Registry) ResolveAndRemove(id string, outcome types.ApprovalOutcome) (*PendingEntry, error) {
	s := r.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !entry.Kind.Accepts(outcome) {
		return nil, fmt.Errorf("%w: %s request cannot take %s", ErrKindMismatch, entry.Kind, outcome.Status)
	}

	delete(s.entries, id)
	if err := entry.cell.Resolve(outcome); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return entry, nil
}

// Expired 返回 now 时刻已过期的请求 ID
func (r *Registry) Expired(now time.Time) []string {
	var ids []string
	for _, s := range r.shards {
		s.mu.Lock()
		for id, entry := range s.entries {
			if entry.Request.Expired(now) {
				ids = append(ids, id)
			}
		}
		s.mu.Unlock()
	}
	return ids
}

// List 按创建时间升序列出匹配的等待请求
func (r *Registry) List(filter ListFilter) []PendingApproval {
	var out []PendingApproval
	for _, s := range r.shards {
		s.mu.Lock()
		for _, entry := range s.entries {
			if filter.match(entry) {
				out = append(out, PendingApproval{Request: entry.Request, Kind: entry.Kind})
			}
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Request.CreatedAt.Equal(out[j].Request.CreatedAt) {
			return out[i].Request.ID < out[j].Request.ID
		}
		return out[i].Request.CreatedAt.Before(out[j].Request.CreatedAt)
	})
	return out
}

// Len 等待中的请求数
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
