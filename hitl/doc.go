// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

// Package hitl 提供澄清式人机交互: 当查询过于模糊或回答无法校验时,
// 流水线挂起当前轮次, 向用户提出一个澄清问题并给出 2-4 个选项.
//
// 挂起状态以可序列化的 PendingClarification 表示, 按线程 ID 保存在
// PendingStore 中 (进程内 InMemoryPendingStore 或 Redis 上的
// RedisPendingStore), 带 TTL. 用户回复后通过 Take 原子取出,
// 以 "原问题, specifically 回复" 组成新查询继续执行.
package hitl
