package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Venue     VenueConfig     `mapstructure:"venue"`
	Scenarios ScenariosConfig `mapstructure:"scenarios"`
	History   HistoryConfig   `mapstructure:"history"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// GeneratorConfig 控制价格路径与订单形态。
type GeneratorConfig struct {
	StepsPerDay     int     `mapstructure:"steps_per_day"`
	Days            int     `mapstructure:"days"` // 0 表示无限循环
	SymbolID        uint64  `mapstructure:"symbol_id"`
	Seed            uint64  `mapstructure:"seed"` // 0 表示不固定随机种子
	MinSize         float64 `mapstructure:"min_size"`
	Alpha           float64 `mapstructure:"alpha"`
	MeanOffsetCents float64 `mapstructure:"mean_offset_cents"`
}

// VenueConfig 描述撮合场所连接参数。
type VenueConfig struct {
	Service        string        `mapstructure:"service"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RedialInterval time.Duration `mapstructure:"redial_interval"`
}

// ScenariosConfig 定义每个场景对应的撮合场所地址。
type ScenariosConfig struct {
	Noise     ScenarioConfig `mapstructure:"noise"`
	Arbitrage ScenarioConfig `mapstructure:"arbitrage"`
}

// ScenarioConfig 为单个场景的场所列表。
type ScenarioConfig struct {
	Venues []string `mapstructure:"venues"`
}

// HistoryConfig 控制历史收盘价来源。
type HistoryConfig struct {
	Source    string         `mapstructure:"source"` // exchange | cache
	Timeframe string         `mapstructure:"timeframe"`
	Lookback  int            `mapstructure:"lookback"`
	Exchange  ExchangeConfig `mapstructure:"exchange"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	APIPass    string      `mapstructure:"api_password"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
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

// MonitorConfig 控制状态查询接口。
type MonitorConfig struct {
	Port int `mapstructure:"port"`
	// PushInterval 为 websocket 推送状态的间隔。
	PushInterval time.Duration `mapstructure:"push_interval"`
}

const (
	HistorySourceExchange = "exchange"
	HistorySourceCache    = "cache"
)

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}

	if c.Generator.StepsPerDay <= 0 {
		err = multierr.Append(err, errors.New("generator.steps_per_day 必须大于0"))
	}
	if c.Generator.Days < 0 {
		err = multierr.Append(err, errors.New("generator.days 不能为负"))
	}
	if c.Generator.MinSize <= 0 {
		err = multierr.Append(err, errors.New("generator.min_size 必须大于0"))
	}
	if c.Generator.Alpha <= 0 {
		err = multierr.Append(err, errors.New("generator.alpha 必须大于0"))
	}
	if c.Generator.MeanOffsetCents < 0 {
		err = multierr.Append(err, errors.New("generator.mean_offset_cents 不能为负"))
	}

	if c.Venue.Service == "" || strings.Contains(c.Venue.Service, "/") {
		err = multierr.Append(err, errors.New("venue.service 不能为空且不能包含 /"))
	}
	if c.Venue.SubmitTimeout <= 0 {
		err = multierr.Append(err, errors.New("venue.submit_timeout 必须大于0"))
	}
	if c.Venue.DialTimeout <= 0 {
		err = multierr.Append(err, errors.New("venue.dial_timeout 必须大于0"))
	}
	if c.Venue.RedialInterval < 0 {
		err = multierr.Append(err, errors.New("venue.redial_interval 不能为负"))
	}

	if len(c.Scenarios.Noise.Venues) == 0 {
		err = multierr.Append(err, errors.New("scenarios.noise.venues 至少包含一个场所"))
	}
	if len(c.Scenarios.Arbitrage.Venues) < 2 {
		err = multierr.Append(err, errors.New("scenarios.arbitrage.venues 至少包含两个场所"))
	}
	for _, addr := range append(append([]string{}, c.Scenarios.Noise.Venues...), c.Scenarios.Arbitrage.Venues...) {
		if strings.TrimSpace(addr) == "" {
			err = multierr.Append(err, errors.New("scenarios 中的场所地址不能为空"))
			break
		}
	}

	switch c.History.Source {
	case HistorySourceExchange:
		if c.History.Exchange.Name == "" {
			err = multierr.Append(err, errors.New("history.exchange.name 不能为空"))
		}
		if c.History.Exchange.Retry.MaxAttempts <= 0 {
			err = multierr.Append(err, errors.New("history.exchange.retry.max_attempts 必须大于0"))
		}
		if c.History.Exchange.Retry.MinDelay <= 0 || c.History.Exchange.Retry.MaxDelay <= 0 {
			err = multierr.Append(err, errors.New("history.exchange.retry.delay 必须为正"))
		}
		if c.History.Exchange.Retry.MinDelay > c.History.Exchange.Retry.MaxDelay {
			err = multierr.Append(err, errors.New("history.exchange.retry.min_delay 不能大于 max_delay"))
		}
	case HistorySourceCache:
	default:
		err = multierr.Append(err, fmt.Errorf("history.source 不支持: %q", c.History.Source))
	}
	if c.History.Exchange.Market == "" {
		err = multierr.Append(err, errors.New("history.exchange.market 不能为空"))
	}
	if c.History.Timeframe == "" {
		err = multierr.Append(err, errors.New("history.timeframe 不能为空"))
	}
	if c.History.Lookback < 2 {
		err = multierr.Append(err, errors.New("history.lookback 至少为2"))
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

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[0,65535]"))
	}
	if c.Monitor.PushInterval <= 0 {
		err = multierr.Append(err, errors.New("monitor.push_interval 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
