// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package memory 提供对话记忆: 以 thread_id 为键的线程存储。

# 概述

线程是一段对话的有序轮次序列, 只能通过追加已完成的轮次修改。
同一线程的轮次按到达顺序串行处理: 调用方通过 Acquire 获得线程的
独占会话, 在会话内读取历史并追加本轮结果, 最后 Release。
不同线程之间完全独立, 可以并发处理。

# 核心类型

  - Turn: 一轮问答的完整记录（原始查询、改写查询、路由、引用来源、重试计数）
  - Thread: 线程快照
  - Store: 线程存储接口; InMemoryStore 为进程内实现
  - Session: 持有线程独占访问权的句柄

# 生命周期

InMemoryStore 在后台清理空闲超过 TTL 的线程; 线程数超过上限时按
最近最少使用淘汰未被占用的线程。进程重启后记忆不保留。
*/
package memory
