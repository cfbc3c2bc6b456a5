// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供文本嵌入接口与 OpenAI 兼容实现，
为混合检索的稠密检索路径生成查询向量。

# 核心接口

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、Name、Dimensions。
  - EmbeddingRequest / EmbeddingResponse：标准化的请求与响应模型。
  - InputType：输入类型，query 或 document。
  - BaseProvider：公共基类，封装 HTTP 请求与错误映射。

# 使用方式

	provider := embedding.NewOpenAIProvider(embedding.OpenAIConfig{APIKey: "sk-..."})
	vec, err := provider.EmbedQuery(ctx, "SMI eligibility threshold")
*/
package embedding
