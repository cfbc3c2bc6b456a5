// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 askflow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试与场景测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - AssertErrorCode: 按 types.ErrorCode 断言错误
  - MustJSON: 构造脚本化 LLM 响应

# 子包

  - testutil/mocks: ScriptedProvider（按提示类型作答的 LLM Provider）、
    HashEmbedder（确定性嵌入）、MockThreadStore 与 MockChunkStore
    （包装真实实现并注入错误），均支持 Builder 模式
  - testutil/fixtures: 项目语料、地点目录与脚本化响应（路由、校验、
    澄清 JSON，按关键词打分的裁判，按来源引用的生成器）

# 使用示例

	provider := mocks.NewScriptedProvider().
		OnText(mocks.KindRouter, fixtures.RouteReply(rag.RouteRAG, 0.9)).
		On(mocks.KindGenerator, fixtures.AnswerCiting("$92,041", "The SMI is $92,041."))
*/
package testutil
