// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 approvalflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现审批响应、待审批列表、记录查询、事件流与健康检查端点，
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
路由通过 Go 1.22 的 ServeMux 模式（方法 + 路径参数）注册。

# 核心类型

  - ApprovalHandler: 响应、列表与记录查询；成功响应后上报 approval_responded 分析事件
  - StreamHandler  : 通过 websocket 推送引擎的 created / resolved 事件
  - HealthHandler  : 服务健康检查（/health, /healthz, /ready, /version）
  - Response       : 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo      : 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter : 包装 http.ResponseWriter 以捕获状态码

# 错误映射

引擎错误经 approvals.ToAPIError 转换为 types.Error：
未找到 → 404 APPROVAL_NOT_FOUND，类型不匹配 → 422 APPROVAL_KIND_MISMATCH，
请求体非法 → 400 INVALID_REQUEST，其余 → 500。
*/
package handlers
