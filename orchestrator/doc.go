// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package orchestrator 实现问答状态机：路由、改写、混合检索、重排、
生成、校验、回退与澄清。

# 执行模型

每轮问答在 workflow.Graph 上执行一次。节点只读取 TurnState 并返回
StateUpdate，合并后由条件边选择下一节点。改写循环
(REWRITE → RETRIEVE) 与重新生成循环 (REGENERATE → VALIDATE)
各自持有独立计数器，每轮从 0 开始，达到上限后走确定的出口。

外部依赖失败在节点边界降级：检索失败视为空结果，重排裁判失败时
候选未评分透传，校验器不可用时跳过校验，生成失败时回退到最佳草稿。

# 线程

带 thread_id 的请求在整轮执行期间持有该线程的独占会话，
完成后只追加一条 Turn。澄清挂起的轮次不写入记忆，恢复后
从 RETRIEVE 继续，查询为 "Q, specifically R"。
不带 thread_id 的请求是无状态的单轮请求。
*/
package orchestrator
