// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 approvalflow 审批协调服务的程序入口。

# 概述

cmd/approvalflow 启动审批引擎并暴露 HTTP API、WebSocket 事件流、
健康检查与 Prometheus 指标。子命令包括 serve、migrate、version、health。

# 核心类型

  - Server    : 组装存储、通知、审批引擎与 HTTP 服务器，负责优雅关闭
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 存储：memory / sqlite / postgres / mysql，可选 Redis 执行上下文缓存
  - 通知：日志、webhook、Redis PUBLISH，经 worker 池异步投递
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、OTel、CORS、APIKey 或 JWT 认证、按用户/IP 限流
  - 配置监听：日志级别热更新，其余变更提示重启
  - 执行器接入：Server.ApprovalService 为每个执行进程返回审批服务
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置

# 执行器接入

审批请求只由执行器创建。独立运行的二进制只承载人工一侧：
响应、列表与事件流。执行器与 Server 同进程部署，启动 Server 后
为每个执行进程调用 Server.ApprovalService，取得的 ExecutorApprovalBridge
负责创建请求、发送提醒并阻塞等待结果；也可以直接嵌入 approvals 包，
用 approvals.New 与 approvals.NewExecutorApprovalBridge 自行组装。
两种方式共享同一个引擎，HTTP 端的响应才能送达等待中的执行器。
*/
package main
