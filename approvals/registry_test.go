package approvals

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/approvalflow/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRequest(toolName, executionProcessID string, timeout time.Duration) types.ApprovalRequest {
	return types.NewApprovalRequest(types.CreateApprovalRequest{
		ToolName:   toolName,
		ToolCallID: "call-" + toolName,
	}, executionProcessID, testNow, timeout)
}

func TestRegistry_InsertGet(t *testing.T) {
	r := NewRegistry(4)
	req := newTestRequest("shell_exec", "proc-1", time.Minute)

	require.NoError(t, r.Insert(NewPendingEntry(req, types.ApprovalKindPermission)))
	err := r.Insert(NewPendingEntry(req, types.ApprovalKindPermission))
	assert.ErrorIs(t, err, ErrDuplicateID)

	entry, err := r.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, entry.Request.ID)
	assert.Equal(t, 1, r.Len())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ResolveAndRemove(t *testing.T) {
	t.Run("resolves and evicts", func(t *testing.T) {
		r := NewRegistry(0)
		req := newTestRequest("shell_exec", "proc-1", time.Minute)
		entry := NewPendingEntry(req, types.ApprovalKindPermission)
		require.NoError(t, r.Insert(entry))

		got, err := r.ResolveAndRemove(req.ID, types.Approved())
		require.NoError(t, err)
		assert.Same(t, entry, got)
		assert.Equal(t, 0, r.Len())

		out, ok := entry.Waiter().Outcome()
		require.True(t, ok)
		assert.Equal(t, types.OutcomeApproved, out.Status)

		_, err = r.ResolveAndRemove(req.ID, types.Denied(""))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("kind mismatch leaves entry pending", func(t *testing.T) {
		r := NewRegistry(0)
		req := newTestRequest("ask_user", "proc-1", time.Minute)
		entry := NewPendingEntry(req, types.ApprovalKindQuestion)
		require.NoError(t, r.Insert(entry))

		_, err := r.ResolveAndRemove(req.ID, types.Approved())
		assert.ErrorIs(t, err, ErrKindMismatch)
		assert.Equal(t, 1, r.Len())
		assert.False(t, entry.cell.Resolved())

		_, err = r.ResolveAndRemove(req.ID, types.Answered(types.QuestionAnswer{Question: "q", Answer: []string{"a"}}))
		require.NoError(t, err)
	})

	t.Run("cell resolved elsewhere", func(t *testing.T) {
		r := NewRegistry(0)
		req := newTestRequest("shell_exec", "proc-1", time.Minute)
		entry := NewPendingEntry(req, types.ApprovalKindPermission)
		require.NoError(t, r.Insert(entry))
		require.NoError(t, entry.cell.Resolve(types.TimedOut()))

		_, err := r.ResolveAndRemove(req.ID, types.Approved())
		assert.ErrorIs(t, err, ErrAlreadyResolved)
		assert.Equal(t, 0, r.Len())
	})
}

func TestRegistry_ExpiredAndList(t *testing.T) {
	r := NewRegistry(8)

	short := newTestRequest("a", "proc-1", time.Second)
	long := newTestRequest("b", "proc-2", time.Hour)
	long.CreatedAt = long.CreatedAt.Add(time.Millisecond)
	require.NoError(t, r.Insert(NewPendingEntry(short, types.ApprovalKindPermission)))
	require.NoError(t, r.Insert(NewPendingEntry(long, types.ApprovalKindQuestion)))

	assert.Empty(t, r.Expired(testNow))
	assert.Equal(t, []string{short.ID}, r.Expired(testNow.Add(time.Second)))
	assert.Len(t, r.Expired(testNow.Add(2*time.Hour)), 2)

	all := r.List(ListFilter{})
	require.Len(t, all, 2)
	assert.Equal(t, short.ID, all[0].Request.ID)
	assert.Equal(t, long.ID, all[1].Request.ID)

	byProc := r.List(ListFilter{ExecutionProcessID: "proc-2"})
	require.Len(t, byProc, 1)
	assert.Equal(t, types.ApprovalKindQuestion, byProc[0].Kind)

	byKind := r.List(ListFilter{Kind: types.ApprovalKindPermission})
	require.Len(t, byKind, 1)
	assert.Equal(t, short.ID, byKind[0].Request.ID)
}

func TestRegistry_ConcurrentResolversSingleWinner(t *testing.T) {
	r := NewRegistry(0)
	req := newTestRequest("shell_exec", "proc-1", time.Minute)
	require.NoError(t, r.Insert(NewPendingEntry(req, types.ApprovalKindPermission)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := types.Approved()
			if i%2 == 0 {
				o = types.TimedOut()
			}
			if _, err := r.ResolveAndRemove(req.ID, o); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, r.Len())
}

// 与简单 map 模型对照的状态机性质测试
func TestProperty_Registry_MatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewRegistry(rapid.IntRange(1, 8).Draw(rt, "shards"))
		model := make(map[string]types.ApprovalKind)
		var ids []string

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("op_%d", i)) {
			case 0:
				kind := rapid.SampledFrom([]types.ApprovalKind{types.ApprovalKindPermission, types.ApprovalKindQuestion}).Draw(rt, "kind")
				req := newTestRequest("tool", "proc", time.Minute)
				if err := r.Insert(NewPendingEntry(req, kind)); err != nil {
					rt.Fatalf("insert: %v", err)
				}
				model[req.ID] = kind
				ids = append(ids, req.ID)
			case 1:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(rt, "id")
				outcome := rapid.SampledFrom([]types.ApprovalOutcome{
					types.Approved(), types.Denied("x"), types.TimedOut(), types.Answered(),
				}).Draw(rt, "outcome")

				_, err := r.ResolveAndRemove(id, outcome)
				kind, pending := model[id]
				switch {
				case !pending:
					if err == nil {
						rt.Fatalf("resolved %s twice", id)
					}
				case !kind.Accepts(outcome):
					if err == nil {
						rt.Fatalf("accepted %s for %s", outcome.Status, kind)
					}
				default:
					if err != nil {
						rt.Fatalf("resolve: %v", err)
					}
					delete(model, id)
				}
			case 2:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(rt, "get_id")
				_, err := r.Get(id)
				if _, pending := model[id]; pending != (err == nil) {
					rt.Fatalf("get %s: pending=%v err=%v", id, pending, err)
				}
			}
			if r.Len() != len(model) {
				rt.Fatalf("len %d != model %d", r.Len(), len(model))
			}
		}
	})
}
