// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、审批生命周期、
通知投递与数据库连接池。

# 概述

Collector 通过 promauto 注册所有指标，按 namespace 隔离。
它同时满足 approvals.MetricsRecorder 与 notification.Recorder，
由 cmd/approvalflow 在启动时注入引擎与分发器。

# 核心指标

  - approvals_created_total{kind}
  - approvals_resolved_total{kind,status,resolver}
  - approvals_pending
  - approval_wait_seconds{kind,resolver}
  - approval_persistence_failures_total{operation}
  - notifications_total{channel,status}
  - http_requests_total / http_request_duration_seconds 等 HTTP 指标
  - db_connections_open / db_connections_idle
*/
package metrics
