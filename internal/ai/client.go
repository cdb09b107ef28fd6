package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"signal-backtest/internal/backtest"
	"signal-backtest/internal/config"
	"signal-backtest/internal/feature"
)

// Classifier 通过 OpenAI 对特征行做涨跌分类，实现 signal.Generator。
type Classifier struct {
	cfg     config.OpenAIConfig
	horizon int
	logger  *zap.Logger
	sdk     *openai.Client
}

// NewClassifier 使用给定配置创建分类器，horizon 为预测的K线数量。
func NewClassifier(cfg config.OpenAIConfig, horizon int, logger *zap.Logger) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if horizon <= 0 {
		horizon = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Classifier{
		cfg:     cfg,
		horizon: horizon,
		logger:  logger,
		sdk:     openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// Generate 按批次请求模型，返回与特征行一一对应的信号。
func (c *Classifier) Generate(ctx context.Context, table feature.Table) ([]backtest.Signal, error) {
	signals := make([]backtest.Signal, 0, table.Len())

	for start := 0; start < table.Len(); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, table.Len())
		batch := table.Rows[start:end]

		prediction, err := c.classify(ctx, table.Symbol, batch)
		if err != nil {
			return nil, fmt.Errorf("ai: %s 第 %d-%d 行分类失败: %w", table.Symbol, start, end-1, err)
		}
		signals = append(signals, prediction.Signals()...)
	}

	c.logger.Info("AI 信号生成完成",
		zap.String("symbol", table.Symbol),
		zap.Int("rows", table.Len()),
		zap.Int("batch_size", c.cfg.BatchSize),
	)

	return signals, nil
}

func (c *Classifier) classify(ctx context.Context, symbol string, rows []feature.Row) (Prediction, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	response, err := c.sdk.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: BuildSystemPrompt(c.horizon),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(symbol, rows),
			},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.String("symbol", symbol), zap.Error(err))
		return Prediction{}, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return Prediction{}, errors.New("OpenAI 返回结果为空")
	}

	rawContent := response.Choices[0].Message.Content
	prediction, err := parsePrediction(rawContent)
	if err != nil {
		c.logger.Error("解析模型预测失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return Prediction{}, err
	}

	if err := prediction.Validate(len(rows)); err != nil {
		return Prediction{}, err
	}

	return prediction, nil
}
