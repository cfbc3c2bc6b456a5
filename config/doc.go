// Package config 提供 askflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → ASKFLOW_<SECTION>_<FIELD> 环境变量 的顺序合并,
// 最后统一验证。各配置节通过 Config 上的转换方法生成组件自己的配置类型,
// 组件包不依赖本包。
package config
