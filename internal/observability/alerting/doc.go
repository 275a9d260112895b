// Package alerting 将需要告警的证明存储失败转换为事件，并投递到 webhook 或日志渠道。
package alerting
