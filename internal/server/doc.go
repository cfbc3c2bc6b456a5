// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理问答服务 HTTP 服务器的生命周期。

Manager 封装 net/http.Server: Start 非阻塞启动, Wait 在 context
结束 (信号) 或服务异常退出时触发优雅关闭, Shutdown 先排空 HTTP
请求, 再按注册的逆序释放依赖 (线程存储, Redis, 数据库, 遥测)。
Addr 在监听后返回实际地址, 便于以 ":0" 启动的测试。
*/
package server
