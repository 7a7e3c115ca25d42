package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	dotEnvPath        = ".env"
	envPrefix         = "orderflow"
)

// Load 读取配置文件并结合环境变量返回 Config。
// path 为空且默认配置文件不存在时，仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	// .env 中的变量不覆盖已存在的环境变量。
	if err := godotenv.Load(dotEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 %s 失败: %w", dotEnvPath, err)
	}

	v := viper.New()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		switch {
		case missing && explicit:
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		case !missing:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("generator.steps_per_day", 390)
	v.SetDefault("generator.days", 0)
	v.SetDefault("generator.symbol_id", 0)
	v.SetDefault("generator.seed", 0)
	v.SetDefault("generator.min_size", 100)
	v.SetDefault("generator.alpha", 1.5)
	v.SetDefault("generator.mean_offset_cents", 10)

	v.SetDefault("venue.service", "exchange.ExchangeService")
	v.SetDefault("venue.submit_timeout", "2s")
	v.SetDefault("venue.dial_timeout", "2s")
	v.SetDefault("venue.redial_interval", "1s")

	v.SetDefault("scenarios.noise.venues", []string{"localhost:9000"})
	v.SetDefault("scenarios.arbitrage.venues", []string{"localhost:9000", "localhost:9001"})

	v.SetDefault("history.source", HistorySourceExchange)
	v.SetDefault("history.timeframe", "1d")
	v.SetDefault("history.lookback", 504)
	v.SetDefault("history.exchange.name", "binanceusdm")
	v.SetDefault("history.exchange.market", "BTC/USDT:USDT")
	v.SetDefault("history.exchange.use_sandbox", false)
	v.SetDefault("history.exchange.retry.max_attempts", 5)
	v.SetDefault("history.exchange.retry.min_delay", "500ms")
	v.SetDefault("history.exchange.retry.max_delay", "5s")

	v.SetDefault("database.path", "data/orderflow.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.port", 0)
	v.SetDefault("monitor.push_interval", "1s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
