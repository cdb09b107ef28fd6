package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"signal-backtest/internal/backtest"
)

// Config 聚合了批量回测所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Symbols  []string       `mapstructure:"symbols"`
	Data     DataConfig     `mapstructure:"data"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Signal   SignalConfig   `mapstructure:"signal"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Output   OutputConfig   `mapstructure:"output"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// 行情数据来源。
const (
	SourceExchange = "exchange"
	SourceCSV      = "csv"
)

// DataConfig 选择行情数据来源。
type DataConfig struct {
	Source   string        `mapstructure:"source"`
	CSVDir   string        `mapstructure:"csv_dir"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Timeframe  string      `mapstructure:"timeframe"`
	Limit      int         `mapstructure:"limit"`
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

// BacktestConfig 对应回测引擎参数与并发度。
type BacktestConfig struct {
	HoldingPeriod   int     `mapstructure:"holding_period"`
	RiskPerTrade    float64 `mapstructure:"risk_per_trade"`
	TransactionCost float64 `mapstructure:"transaction_cost"`
	Slippage        float64 `mapstructure:"slippage"`
	InitialCapital  float64 `mapstructure:"initial_capital"`
	Concurrency     int     `mapstructure:"concurrency"`
}

// Params 转换为引擎参数。
func (c BacktestConfig) Params() backtest.Params {
	return backtest.Params{
		HoldingPeriod:   c.HoldingPeriod,
		RiskPerTrade:    c.RiskPerTrade,
		TransactionCost: c.TransactionCost,
		Slippage:        c.Slippage,
		InitialCapital:  c.InitialCapital,
	}
}

// FilterConfig 控制样本筛选。Regime 为 -1 时不按波动率分层过滤。
type FilterConfig struct {
	Regime     int `mapstructure:"regime"`
	MinSamples int `mapstructure:"min_samples"`
	Horizon    int `mapstructure:"horizon"`
}

// 信号生成器类型。
const (
	GeneratorVote   = "vote"
	GeneratorOpenAI = "openai"
)

// SignalConfig 选择信号生成方式。
type SignalConfig struct {
	Generator string `mapstructure:"generator"`
	MinVotes  int    `mapstructure:"min_votes"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
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

// ServerConfig 控制回测历史查询接口。
type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// OutputConfig 控制 CSV 导出，Dir 为空时不导出。
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if len(c.Symbols) == 0 {
		err = multierr.Append(err, errors.New("symbols 至少包含一个标的"))
	}
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			err = multierr.Append(err, errors.New("symbols 不能包含空字符串"))
			break
		}
	}

	switch c.Data.Source {
	case SourceExchange:
		if c.Exchange.Name == "" {
			err = multierr.Append(err, errors.New("exchange.name 不能为空"))
		}
		if c.Exchange.Timeframe == "" {
			err = multierr.Append(err, errors.New("exchange.timeframe 不能为空"))
		}
		if c.Exchange.Limit <= 0 {
			err = multierr.Append(err, errors.New("exchange.limit 必须大于0"))
		}
		if c.Exchange.Retry.MaxAttempts <= 0 {
			err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
		}
		if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
			err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
		}
		if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
			err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
		}
	case SourceCSV:
		if c.Data.CSVDir == "" {
			err = multierr.Append(err, errors.New("data.csv_dir 不能为空"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("data.source 取值非法: %q", c.Data.Source))
	}
	if c.Data.CacheTTL < 0 {
		err = multierr.Append(err, errors.New("data.cache_ttl 不能为负"))
	}

	if paramErr := c.Backtest.Params().Validate(); paramErr != nil {
		err = multierr.Append(err, paramErr)
	}
	if c.Backtest.Concurrency <= 0 {
		err = multierr.Append(err, errors.New("backtest.concurrency 必须大于0"))
	}

	if c.Filter.Regime < -1 || c.Filter.Regime > 2 {
		err = multierr.Append(err, errors.New("filter.regime 必须位于[-1,2]"))
	}
	if c.Filter.MinSamples <= c.Backtest.HoldingPeriod {
		err = multierr.Append(err, errors.New("filter.min_samples 必须大于 backtest.holding_period"))
	}
	if c.Filter.Horizon <= 0 {
		err = multierr.Append(err, errors.New("filter.horizon 必须大于0"))
	}

	switch c.Signal.Generator {
	case GeneratorVote:
		if c.Signal.MinVotes <= 0 || c.Signal.MinVotes > 4 {
			err = multierr.Append(err, errors.New("signal.min_votes 必须位于[1,4]"))
		}
	case GeneratorOpenAI:
		if c.OpenAI.APIKey == "" {
			err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
		}
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model 不能为空"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
		}
		if c.OpenAI.BatchSize <= 0 {
			err = multierr.Append(err, errors.New("openai.batch_size 必须大于0"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("signal.generator 取值非法: %q", c.Signal.Generator))
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

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
