// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供泛型状态图执行引擎。

# 概述

[Graph] 在状态 S 上执行一组节点。每个节点返回部分更新 U, 由
[MergeFunc] 合并回状态; 边可以是固定边或由 [EdgeFunc] 决定的条件边。
执行在边指向 END 时结束, 超过 MaxSteps 时返回 ErrStepLimitExceeded。

# 核心类型

  - GraphBuilder: Fluent API 构建图, Build 时校验入口, 边目标与条件边取值
  - Trace: 记录访问顺序与每个节点的访问次数
  - Observer: 节点开始与结束的回调
  - DegradeFunc: 节点返回错误或 panic 时的降级更新; 未设置时错误终止执行

# 状态合并

state_reducer.go 提供常用 Reducer: LastValue, Append, MergeMap, Sum,
Max 与 Optional (nil 表示不修改)。
*/
package workflow
