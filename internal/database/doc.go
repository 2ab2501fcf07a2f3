// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为审批记录存储管理 GORM 连接池。

# 概述

PoolManager 持有 *gorm.DB 与底层 *sql.DB，按 DatabaseConfig 设置
连接上限与生命周期，并在后台按固定间隔探活。每轮探活把打开与空闲
连接数交给 StatsRecorder（internal/metrics.Collector 实现），
/ready 的数据库检查也通过 Ping 完成。

# 核心类型

  - PoolManager：DB / Ping / Stats / Close，外加事务辅助方法。
  - PoolConfig：MaxIdleConns、MaxOpenConns、ConnMaxLifetime、
    ConnMaxIdleTime、HealthCheckInterval 与用于指标标签的 Name。
  - StatsRecorder：连接数上报接口。
  - TransactionFunc：事务回调。

# 事务

WithTransaction 执行单次事务。WithTransactionRetry 在死锁、序列化失败
或 SQLite busy 时按指数退避重试，approvals/gormstore 的终态写入
（UpdateStatus）与执行进程登记都走这条路径。
*/
package database
