package configs

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBType 元数据库方言.
type DBType string

const (
	DBPostgres DBType = "postgres"
	DBMySQL    DBType = "mysql"
	// DBSQLite database 为文件路径，没有扩展名时补 .db.
	DBSQLite DBType = "sqlite"
)

// dbAliases 配置里常见的别名.
var dbAliases = map[DBType]DBType{
	"postgresql": DBPostgres,
	"postgre":    DBPostgres,
	"pg":         DBPostgres,
	"mariadb":    DBMySQL,
	"sqlite3":    DBSQLite,
}

const (
	DefaultDatabaseType     = DBSQLite
	DefaultDatabaseHost     = "localhost"
	DefaultDatabasePort     = 5432
	DefaultDatabaseUser     = "docvault"
	DefaultDatabaseName     = "docvault"
	DefaultDatabaseSSLMode  = "disable"
	DefaultMaxOpenConns     = 10
	DefaultMaxIdleConns     = 5
	DefaultConnMaxLifetime  = 30 * time.Minute
	DefaultSlowQueryLogging = 200 * time.Millisecond
)

// DBConfig 元数据库配置. dsn 非空时直接使用，忽略 host 等字段.
type DBConfig struct {
	Type            DBType        `mapstructure:"type"              rule:"oneof=postgres postgresql postgre pg mysql mariadb sqlite sqlite3"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"              rule:"omitempty,hostname|ip"`
	Port            int           `mapstructure:"port"              rule:"min=1,max=65535"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"          rule:"required"`
	SSLMode         string        `mapstructure:"sslmode"           rule:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    rule:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    rule:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" rule:"min=0"`
	SlowQuery       time.Duration `mapstructure:"slow_query"        rule:"min=0"`
}

// Dialect 返回归一化后的方言.
func (c *DBConfig) Dialect() DBType {
	t := DBType(strings.ToLower(string(c.Type)))
	if canonical, ok := dbAliases[t]; ok {
		return canonical
	}

	return t
}

// ConnString 返回驱动使用的连接串.
func (c *DBConfig) ConnString() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	switch c.Dialect() {
	case DBPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:     "/" + c.Database,
			RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
		}

		return u.String(), nil
	case DBMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database), nil
	case DBSQLite:
		name := c.Database
		if filepath.Ext(name) == "" {
			name += ".db"
		}

		return "file:" + name, nil
	default:
		return "", fmt.Errorf("unknown database type %q", c.Type)
	}
}

// Endpoint 日志中展示的连接目标，不含凭据.
func (c *DBConfig) Endpoint() string {
	if c.Dialect() == DBSQLite {
		return c.Database
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + "/" + c.Database
}

func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", DefaultDatabaseType)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", DefaultDatabaseHost)
	v.SetDefault("db.port", DefaultDatabasePort)
	v.SetDefault("db.user", DefaultDatabaseUser)
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", DefaultDatabaseName)
	v.SetDefault("db.sslmode", DefaultDatabaseSSLMode)
	v.SetDefault("db.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("db.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("db.conn_max_lifetime", DefaultConnMaxLifetime)
	v.SetDefault("db.slow_query", DefaultSlowQueryLogging)
}
