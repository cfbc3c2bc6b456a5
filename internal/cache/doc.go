// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的共享连接管理，供待澄清记录等跨进程状态使用。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括初始化时的
连通性检查、后台健康检查与优雅关闭；所有键自动加上配置的前缀。

# 核心类型

  - Manager：持有 Redis 客户端，提供 SetJSON/GetJSON/TakeJSON/Delete/Ping。
  - Config：地址、密码、数据库编号、键前缀、默认 TTL 与连接池参数。

# 主要能力

  - JSON 存取：值以 JSON 序列化，写入时带 TTL。
  - 一次性消费：TakeJSON 使用 GETDEL，同一个值只会被一个调用方取走。
  - 错误语义：ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
