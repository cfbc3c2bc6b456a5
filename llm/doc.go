// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义问答流水线与模型服务之间的最小契约。

# 核心类型

  - [Provider]: 补全与健康检查接口, 由 providers/openaicompat 实现
  - [ChatRequest] / [ChatResponse]: 与服务商无关的请求与响应
  - [Message] / [Role]: 对话消息

# 辅助函数

[ResponseText] 与 [FirstChoice] 从响应中取出首个候选, 空响应返回错误。

# 子包

  - providers: OpenAI 兼容协议的公共结构与 HTTP 错误映射
  - embedding: 查询与文档向量化
  - tokenizer: tiktoken 与估算两种计数器
  - retry: 指数退避重试
*/
package llm
