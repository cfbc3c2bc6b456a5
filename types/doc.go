// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供跨包共享的结构化错误。

# 概述

types 不依赖任何内部包。[Error] 携带 [ErrorCode], HTTP 状态码,
可重试标记与上游服务商名称, 由 api/handlers 统一映射为 HTTP 响应。

# 错误码

  - 请求类: ErrInvalidRequest, ErrUnauthorized, ErrForbidden, ErrNotFound,
    ErrRateLimited, ErrQuotaExceeded
  - 上游类: ErrUpstreamError, ErrTimeout, ErrModelOverloaded,
    ErrEmptyResponse, ErrMalformedResponse
  - 会话类: ErrThreadBusy, ErrThreadCorrupt, ErrClarificationNotFound,
    ErrStepLimitExceeded

# 辅助函数

AsError, IsRetryable, GetErrorCode, IsErrorCode 与 WrapError 按
errors.As 语义穿透包装链。
*/
package types
