// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播流程。Group 把审批 API 服务与 metrics 服务组合在
一起，共享 SIGINT/SIGTERM 信号处理与优雅停机。

# 核心类型

  - Manager：单个 HTTP 服务器，提供 Start/Shutdown/Errors/Addr。
    监听 ":0" 时 Addr 返回实际绑定地址。
  - Group：多个 Manager 的组合，Start 失败时回滚已启动的服务器，
    Wait 在上下文结束或任一服务器异常时返回。
  - Config：服务器配置，包含名称、监听地址、读写超时、空闲超时、
    最大请求头大小与优雅关闭超时。
*/
package server
