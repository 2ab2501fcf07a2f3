// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存与发布能力，服务于执行进程上下文缓存
与 Redis 通知通道。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括初始化、
健康检查与优雅关闭；所有键自动加上配置的前缀。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete、GetJSON/SetJSON 与 Publish。
  - Config：地址、密码、连接池大小、默认 TTL、键前缀与健康检查间隔。

# 主要能力

  - 键值读写：字符串与 JSON 两种模式。
  - 发布：Publish 供 notification.RedisNotifier 投递审批提醒。
  - 健康检查：后台定时 Ping，Close 时退出；Ping 同时用于就绪探针。
  - 错误语义：ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
