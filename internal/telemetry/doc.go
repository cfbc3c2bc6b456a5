// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑,
// 为 askflow 的编排器与 HTTP 层提供 TracerProvider 和 MeterProvider。
// 遥测关闭时使用 noop 实现, 不连接任何外部服务。
package telemetry
