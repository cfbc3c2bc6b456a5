// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容接口的公共层, 供 openaicompat 子包与
embedding 包共用。

# 核心类型

  - OpenAICompat* 系列: 请求, 响应, 消息与 response_format 结构体

# 核心函数

  - MapHTTPError: 把 HTTP 状态码映射为 types.Error, 429/5xx 标记为可重试
  - ReadErrorMessage: 从错误响应体中提取 message 字段
*/
package providers
