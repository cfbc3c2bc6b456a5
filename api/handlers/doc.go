// Copyright (c) askflow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 askflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现问答、线程管理与健康检查端点, 以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - ChatHandler      — 问答处理器 (POST /v1/chat), 返回回答或澄清问题
  - ThreadHandler    — 线程创建、查询与删除
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp + request_id）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Qdrant、Redis、数据库）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteServiceError
  - 请求验证：DecodeJSONBody（请求体上限 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（THREAD_BUSY → 409 等）
*/
package handlers
