package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"signal-backtest/internal/backtest"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "backtest"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
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
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
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

	v.SetDefault("symbols", []string{"AAPL", "MSFT", "NVDA", "META", "SPY"})

	v.SetDefault("data.source", SourceCSV)
	v.SetDefault("data.csv_dir", "data/prices")
	v.SetDefault("data.cache_ttl", "5m")

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.timeframe", "1d")
	v.SetDefault("exchange.limit", 1500)
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	defaults := backtest.DefaultParams()
	v.SetDefault("backtest.holding_period", defaults.HoldingPeriod)
	v.SetDefault("backtest.risk_per_trade", defaults.RiskPerTrade)
	v.SetDefault("backtest.transaction_cost", defaults.TransactionCost)
	v.SetDefault("backtest.slippage", defaults.Slippage)
	v.SetDefault("backtest.initial_capital", defaults.InitialCapital)
	v.SetDefault("backtest.concurrency", 4)

	v.SetDefault("filter.regime", 1)
	v.SetDefault("filter.min_samples", 300)
	v.SetDefault("filter.horizon", 5)

	v.SetDefault("signal.generator", GeneratorVote)
	v.SetDefault("signal.min_votes", 2)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.timeout", "60s")
	v.SetDefault("openai.batch_size", 50)

	v.SetDefault("database.path", "data/backtest.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("output.dir", "")
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
