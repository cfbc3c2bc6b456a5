// Package api 定义 askflow HTTP API 的请求与响应类型。
//
// # API 概览
//
//   - POST   /v1/chat          提问或回复澄清问题
//   - POST   /v1/threads       创建对话线程
//   - GET    /v1/threads/{id}  查询线程历史
//   - DELETE /v1/threads/{id}  删除线程
//   - GET    /health /healthz /ready /version /metrics
//
// # 认证
//
// 配置了 API Key 时通过 X-API-Key 头传递:
//
//	X-API-Key: your-api-key
//
// 配置了 JWT 密钥时也可以使用 Bearer 令牌:
//
//	Authorization: Bearer <token>
//
// # 响应
//
// 所有 JSON 响应都包裹在统一信封中:
//
//	{"success": true, "data": {...}, "timestamp": "...", "request_id": "..."}
//
// /v1/chat 的 data 按 kind 区分 answer 与 clarification_needed 两种形态。
package api
