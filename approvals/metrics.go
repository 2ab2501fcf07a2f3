package approvals

import "time"

// MetricsRecorder 引擎指标接口，由 internal/metrics.Collector 实现
type MetricsRecorder interface {
	RecordApprovalCreated(kind string)
	RecordApprovalResolved(kind, status, resolver string, wait time.Duration)
	SetApprovalsPending(n int)
	RecordPersistenceFailure(operation string)
}

type nopMetrics struct{}

func (nopMetrics) RecordApprovalCreated(string)                                 {}
func (nopMetrics) RecordApprovalResolved(string, string, string, time.Duration) {}
func (nopMetrics) SetApprovalsPending(int)                                      {}
func (nopMetrics) RecordPersistenceFailure(string)                              {}
