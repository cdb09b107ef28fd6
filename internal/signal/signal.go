package signal

import (
	"context"
	"fmt"

	"signal-backtest/internal/backtest"
	"signal-backtest/internal/feature"
)

// Generator 为特征表的每一行给出方向信号。
type Generator interface {
	Generate(ctx context.Context, table feature.Table) ([]backtest.Signal, error)
}

// GeneratorFunc 允许使用函数作为信号来源。
type GeneratorFunc func(ctx context.Context, table feature.Table) ([]backtest.Signal, error)

func (f GeneratorFunc) Generate(ctx context.Context, table feature.Table) ([]backtest.Signal, error) {
	return f(ctx, table)
}

// VoteGenerator 以四个趋势/动量条件投票产生信号。
// 每个条件贡献 +1 或 -1，得分 >= MinVotes 做多，<= -MinVotes 做空，其余观望。
type VoteGenerator struct {
	MinVotes int
}

// NewVoteGenerator 创建投票生成器。
func NewVoteGenerator(minVotes int) (*VoteGenerator, error) {
	if minVotes < 1 || minVotes > 4 {
		return nil, fmt.Errorf("signal: min_votes 必须位于[1,4]，当前 %d", minVotes)
	}
	return &VoteGenerator{MinVotes: minVotes}, nil
}

func (g *VoteGenerator) Generate(ctx context.Context, table feature.Table) ([]backtest.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	signals := make([]backtest.Signal, table.Len())
	for i, row := range table.Rows {
		signals[i] = g.decide(row)
	}
	return signals, nil
}

func (g *VoteGenerator) decide(row feature.Row) backtest.Signal {
	score := vote(row.TrendSMAEMA == 1) +
		vote(row.MACDDiff > 0) +
		vote(row.CloseVsVWAP == 1) +
		vote(row.Return5 > 0)

	switch {
	case score >= g.MinVotes:
		return backtest.Long
	case score <= -g.MinVotes:
		return backtest.Short
	default:
		return backtest.Flat
	}
}

func vote(up bool) int {
	if up {
		return 1
	}
	return -1
}

// Accuracy 统计非观望信号与前瞻方向标签一致的比例，没有可评估信号时返回 0。
func Accuracy(signals []backtest.Signal, targets []int) float64 {
	n := min(len(signals), len(targets))
	acted, hits := 0, 0
	for i := 0; i < n; i++ {
		switch signals[i] {
		case backtest.Long:
			acted++
			if targets[i] == 1 {
				hits++
			}
		case backtest.Short:
			acted++
			if targets[i] == 0 {
				hits++
			}
		}
	}
	if acted == 0 {
		return 0
	}
	return float64(hits) / float64(acted)
}
