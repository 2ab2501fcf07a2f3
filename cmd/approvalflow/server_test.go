package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/api"
	"github.com/BaSui01/approvalflow/approvals"
	"github.com/BaSui01/approvalflow/config"
	"github.com/BaSui01/approvalflow/types"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Approvals.SweepInterval = 20 * time.Millisecond
	return cfg
}

func startTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	db, err := openDatabase(cfg.Database, zap.NewNop())
	require.NoError(t, err)

	srv := NewServer(cfg, zap.NewNop(), zap.NewAtomicLevel(), nil, db)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func baseURL(srv *Server) string {
	return "http://" + srv.httpManager.Addr()
}

func getJSON(t *testing.T, url string, header http.Header, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

func TestServer_ApprovalRoundTrip(t *testing.T) {
	drivers := map[string]func(t *testing.T, cfg *config.Config){
		"memory": func(*testing.T, *config.Config) {},
		"sqlite": func(t *testing.T, cfg *config.Config) {
			cfg.Database.Driver = "sqlite"
			cfg.Database.Name = filepath.Join(t.TempDir(), "approvals.db")
		},
	}

	for name, setup := range drivers {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			setup(t, cfg)
			srv := startTestServer(t, cfg)

			svc, err := srv.ApprovalService(context.Background(), approvals.ExecutionContext{
				ExecutionProcessID: "ep-1",
				Workspace:          approvals.Workspace{ID: "ws-1", Branch: "feature/x"},
			})
			require.NoError(t, err)

			type result struct {
				status types.ApprovalStatus
				err    error
			}
			done := make(chan result, 1)
			go func() {
				st, err := svc.RequestToolApproval(context.Background(), "Bash", json.RawMessage(`{"command":"ls"}`), "call-1")
				done <- result{st, err}
			}()

			// 等待请求出现在待处理列表中
			var list envelope[api.PendingApprovalList]
			require.Eventually(t, func() bool {
				list = envelope[api.PendingApprovalList]{}
				status := getJSON(t, baseURL(srv)+"/api/v1/approvals?execution_process_id=ep-1", nil, &list)
				return status == http.StatusOK && list.Data.Total == 1
			}, 5*time.Second, 20*time.Millisecond)

			item := list.Data.Items[0]
			assert.Equal(t, "Bash", item.ToolName)
			assert.Equal(t, "call-1", item.ToolCallID)
			assert.Equal(t, types.ApprovalKindPermission, item.Kind)

			body, err := json.Marshal(api.RespondRequest{
				ExecutionProcessID: "ep-1",
				Status:             types.Approved(),
			})
			require.NoError(t, err)
			resp, err := http.Post(fmt.Sprintf("%s/api/v1/approvals/%s/respond", baseURL(srv), item.ID),
				"application/json", bytes.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			select {
			case r := <-done:
				require.NoError(t, r.err)
				assert.Equal(t, types.PermissionApproved, r.status.Status)
			case <-time.After(5 * time.Second):
				t.Fatal("executor was not released")
			}

			var record envelope[approvals.ApprovalRecord]
			require.Eventually(t, func() bool {
				record = envelope[approvals.ApprovalRecord]{}
				getJSON(t, baseURL(srv)+"/api/v1/approvals/"+item.ID, nil, &record)
				return record.Data.Status == approvals.RecordApproved
			}, 5*time.Second, 20*time.Millisecond)
			assert.Equal(t, types.ResolverResponse, record.Data.Resolver)

			// 已终结的请求不能再次响应
			resp, err = http.Post(fmt.Sprintf("%s/api/v1/approvals/%s/respond", baseURL(srv), item.ID),
				"application/json", bytes.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}

func TestServer_ReadyReportsPending(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "approvals.db")
	srv := startTestServer(t, cfg)

	var health api.ServiceHealthResponse
	status := getJSON(t, baseURL(srv)+"/ready", nil, &health)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", health.Status)
	require.NotNil(t, health.Pending)
	assert.Equal(t, 0, *health.Pending)
	assert.Equal(t, "pass", health.Checks["database"].Status)
}

func TestServer_APIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"k-1"}
	srv := startTestServer(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, baseURL(srv)+"/api/v1/approvals", nil, nil))
	assert.Equal(t, http.StatusOK, getJSON(t, baseURL(srv)+"/api/v1/approvals",
		http.Header{"X-Api-Key": []string{"k-1"}}, nil))
	assert.Equal(t, http.StatusOK, getJSON(t, baseURL(srv)+"/healthz", nil, nil))
}

func TestServer_ApplyReloadChangesLogLevel(t *testing.T) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	srv := NewServer(testConfig(), zap.NewNop(), level, nil, nil)

	oldCfg := testConfig()
	newCfg := testConfig()
	newCfg.Log.Level = "debug"
	srv.applyReload(oldCfg, newCfg)

	assert.Equal(t, zap.DebugLevel, level.Level())
}

func TestServer_ShutdownIsIdempotent(t *testing.T) {
	srv := NewServer(testConfig(), nil, zap.NewAtomicLevel(), nil, nil)
	require.NoError(t, srv.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, srv.Shutdown(ctx))
}
