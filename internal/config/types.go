package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

// RemainderPolicyCancel 表示部分成交后不留任何挂单，未成交部分直接放弃。
const RemainderPolicyCancel = "cancel"

// RemainderPolicyRest 表示部分成交后将未成交部分以限价单形式挂回订单簿。
const RemainderPolicyRest = "rest"

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// GatewayConfig 描述托管合约网关的连接信息。
type GatewayConfig struct {
	RPCURL     string      `mapstructure:"rpc_url"`
	DexAddress string      `mapstructure:"dex_address"`
	ChainID    int64       `mapstructure:"chain_id"`
	PrivateKey string      `mapstructure:"private_key"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// SnapshotConfig 控制订单表快照的读取行为。
type SnapshotConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// ExecutionConfig 控制扫单执行行为。
type ExecutionConfig struct {
	UseBatchFill    bool   `mapstructure:"use_batch_fill"`
	RemainderPolicy string `mapstructure:"remainder_policy"`
}

// ServerConfig 控制 HTTP 服务。
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig 管理事件库连接。事件写入在扫单路径上是旁路操作，
// busy_timeout 用于吸收 WAL 模式下的短暂写锁竞争。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Gateway.RPCURL == "" {
		err = multierr.Append(err, errors.New("gateway.rpc_url 不能为空"))
	}
	if c.Gateway.DexAddress == "" {
		err = multierr.Append(err, errors.New("gateway.dex_address 不能为空"))
	} else if !common.IsHexAddress(c.Gateway.DexAddress) {
		err = multierr.Append(err, fmt.Errorf("gateway.dex_address 不是合法地址: %s", c.Gateway.DexAddress))
	}
	if c.Gateway.ChainID <= 0 {
		err = multierr.Append(err, errors.New("gateway.chain_id 必须大于0"))
	}
	if c.Gateway.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("gateway.retry.max_attempts 必须大于0"))
	}
	if c.Gateway.Retry.MinDelay <= 0 || c.Gateway.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("gateway.retry.delay 必须为正"))
	}
	if c.Gateway.Retry.MinDelay > c.Gateway.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("gateway.retry.min_delay 不能大于 max_delay"))
	}
	if c.Snapshot.MaxConcurrency <= 0 {
		err = multierr.Append(err, errors.New("snapshot.max_concurrency 必须大于0"))
	}
	switch strings.ToLower(c.Execution.RemainderPolicy) {
	case RemainderPolicyCancel, RemainderPolicyRest:
	default:
		err = multierr.Append(err, fmt.Errorf("execution.remainder_policy 必须为 %s 或 %s", RemainderPolicyCancel, RemainderPolicyRest))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Database.BusyTimeout < 0 {
		err = multierr.Append(err, errors.New("database.busy_timeout 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
