package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"signal-backtest/internal/backtest"
)

// Prediction 为模型返回的一批方向分类结果。
type Prediction struct {
	Predictions []int  `json:"predictions"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// Validate 校验预测条数与取值。
func (p Prediction) Validate(expected int) error {
	if len(p.Predictions) != expected {
		return fmt.Errorf("predictions 数量不匹配: 期望 %d，实际 %d", expected, len(p.Predictions))
	}
	for i, v := range p.Predictions {
		if v != 0 && v != 1 {
			return fmt.Errorf("predictions[%d] 取值非法: %d", i, v)
		}
	}
	return nil
}

// Signals 将分类结果映射为引擎信号。
func (p Prediction) Signals() []backtest.Signal {
	return backtest.SignalsFromClasses(p.Predictions)
}

func parsePrediction(content string) (Prediction, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return Prediction{}, err
	}

	var prediction Prediction
	if err = json.Unmarshal(jsonPayload, &prediction); err != nil {
		return Prediction{}, fmt.Errorf("解析预测JSON失败: %w", err)
	}

	return prediction, nil
}

func extractJSON(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("模型输出为空")
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
