// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为轮次审计日志提供 GORM 连接。

Open 按驱动名打开 postgres, mysql 或 sqlite (glebarez 纯 Go 驱动) 连接;
PoolManager 设置连接池参数, 后台定时 PingContext 探活并把连接数上报到
Prometheus。Close 先停止健康检查再关闭底层 sql.DB, 可重复调用。
*/
package database
