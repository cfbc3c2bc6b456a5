// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 提供问答流水线中与检索增强生成相关的全部组件。

各组件相互独立, 由 orchestrator 包按状态机编排; 每个组件只通过
LLMClient、ChunkStore、QueryEmbedder 等窄接口依赖外部能力。

# 核心接口/类型

  - Chunk / ChunkMetadata — 只读的可检索单元及其结构化元数据
  - ChunkStore — 稠密 + 稀疏检索能力（InMemoryChunkStore / QdrantChunkStore）
  - ManagedSearcher — 后端自带融合排序的检索能力（Qdrant /points/query）
  - LLMClient — Generate / Classify 两种调用（ProviderClient 基于 llm.Provider）
  - Route — 封闭的路由集合 rag / location / conversational / out_of_scope / clarify

# 主要能力

  - 查询分析：财年、文档类型、主题标签提示（QueryAnalyzer）
  - 查询改写：启发式预判 + LLM 改写, 失败时使用原查询（Reformulator）
  - 查询路由：规则 + LLM 分类, 低置信度默认 rag（QueryRouter）
  - 混合检索：稠密 + 稀疏并发检索, RRF 融合, 过滤为空时回退（HybridRetriever）
  - 重排序：单次批量 LLM 打分 + 元数据加权 + 百分位截断（LLMReranker）
  - 生成：带 [n] 引用的回答, 只返回被引用的来源（Generator）
  - 校验：可溯源性与切题性检查, 失败附加说明（Validator）
  - 地点：模板化的办公地点回答（LocationDirectory）
*/
package rag
