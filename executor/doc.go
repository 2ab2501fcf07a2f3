// Package executor 定义工具执行器侧的审批服务契约。
//
// 执行器在调用危险工具或需要用户回答问题前，通过 ApprovalService
// 阻塞等待人工决策。approvals.ExecutorApprovalBridge 是基于审批引擎的实现，
// NoopApprovalService 用于未启用审批的执行进程。
package executor
