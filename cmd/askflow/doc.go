// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
askflow 是问答服务的可执行入口。

子命令:

  - serve: 加载配置, 组装检索, 重排, 生成, 校验与澄清组件, 启动 HTTP 服务。
    SIGINT/SIGTERM 触发优雅关闭, 依次停止 HTTP 服务并释放线程存储,
    Redis, 数据库与遥测。
  - corpus load: 把摄取流程导出的语料快照写入 Qdrant 集合。
  - migrate: 创建轮次审计日志表。
  - version, health, help。

HTTP 中间件链 (由外到内): Recovery, RequestID, SecurityHeaders,
OTelTracing, MetricsMiddleware, RequestLogger, CORS, Authenticate,
RateLimiter。
*/
package main
