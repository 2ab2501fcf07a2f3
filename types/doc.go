// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 approvalflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 approvals、executor、
notification、api 等上层模块提供统一的数据契约，以避免循环依赖。

# 核心类型

  - ApprovalRequest   : 工具执行暂停时创建的不可变审批请求
  - ApprovalKind      : permission / question 两种请求类型
  - ApprovalOutcome   : 终态结果（approved / denied / answered / timed_out）
  - ApprovalResponse  : 人工提交的响应体
  - ApprovalStatus    : 面向执行器的权限状态
  - QuestionStatus    : 面向执行器的问答状态
  - Error / ErrorCode : 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - 结果 JSON 以 "status" 为标签，解码时拒绝未知标签
  - ApprovalKind.Accepts 给出类型与结果的兼容矩阵
  - Context 传播：WithTraceID / WithTenantID / WithUserID / WithExecutionProcessID
  - 错误工具链：AsError / IsRetryable / GetErrorCode
*/
package types
