// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、LLM、
问答流水线、缓存与数据库五个维度。

# 概述

Collector 通过 promauto 注册全部指标，按 namespace 隔离。
记录方法对 nil 接收者安全，未启用指标的组件可以直接持有 nil。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：InstrumentProvider 包装 llm.Provider，按 provider/model/status
    记录请求数、耗时与 prompt/completion token 用量。
  - 流水线指标：每轮的路由与结果、节点耗时与降级、路由决定、
    改写/校验重试次数、过滤回退、跳过重排、澄清事件、活跃线程数。
  - 缓存指标：待澄清记录存储的命中与未命中。
  - 数据库指标：连接数 Gauge 与查询耗时 Histogram。
*/
package metrics
