// Package approvals 提供审批协调引擎。
//
// 工具执行进程在需要人工决策时创建待处理请求并获得一个等待句柄；
// 请求最终由响应、超时或取消三者中最先发生的一方恰好终结一次。
// 引擎由 OutcomeCell（一次写入、多方读取的结果单元）、分片的
// Registry、周期性 Sweeper 与 Approvals 门面组成，
// ExecutorApprovalBridge 把引擎适配为执行器侧的 ApprovalService。
package approvals
