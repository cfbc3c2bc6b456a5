// 版权所有 2025 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 turnlog 持久化已完成的问答轮次，作为审计日志。

每轮记录路由、原始与改写后的查询、语义重试次数、校验结果、
是否跳过重排、是否发生过滤回退、引用来源与处理耗时。
Recorder 基于 GORM，支持 PostgreSQL、MySQL 与 SQLite；
写入失败只记录日志，不影响本轮响应。
*/
package turnlog
