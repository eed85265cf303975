package configs

// AppName 服务名，用作日志、指标与追踪的默认标识.
const AppName = "docvault"

// AppVersion 应用版本号，构建时可通过 -ldflags 覆盖.
var AppVersion = "0.1.0"
