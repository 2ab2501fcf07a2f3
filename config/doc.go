// Package config 提供 ApprovalFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 APPROVALFLOW_）的顺序
// 叠加，Validate 检查端口、审批超时与扫描间隔、数据库驱动等约束。
// Watcher 轮询配置文件，变更后重新加载并通知回调，用于运行期调整
// 日志级别。
package config
