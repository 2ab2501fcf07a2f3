// Package notification 提供审批提醒的投递通道。
//
// Notifier 是最小契约；LogNotifier、WebhookNotifier 与 RedisNotifier
// 分别写日志、POST JSON 与 Redis PUBLISH。Dispatcher 把一次通知扇出到
// 所有通道并交给协程池异步执行，投递失败只记录日志与指标。
package notification
