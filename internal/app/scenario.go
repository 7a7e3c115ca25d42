package app

import (
	"errors"
	"fmt"
	"strings"

	"orderflow/internal/config"
)

// ErrUnknownScenario 表示命令行给出的场景标识无法识别。
var ErrUnknownScenario = errors.New("app: unknown scenario")

// Scenario 为一次运行启动的实例集合。
type Scenario struct {
	ID     string
	Name   string
	Venues []string
}

const (
	scenarioNoise     = "noise"
	scenarioArbitrage = "arbitrage"
)

// ScenarioUsage 返回可用场景说明。
func ScenarioUsage() string {
	return "1|noise（单场所噪声订单流）, 2|arbitrage（双场所套利）"
}

// ResolveScenario 将数字或名称形式的场景标识解析为场所列表。
func ResolveScenario(id string, cfg config.ScenariosConfig) (Scenario, error) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "1", scenarioNoise:
		return Scenario{ID: "1", Name: scenarioNoise, Venues: cfg.Noise.Venues}, nil
	case "2", scenarioArbitrage:
		if len(cfg.Arbitrage.Venues) < 2 {
			return Scenario{}, fmt.Errorf("app: arbitrage 场景至少需要两个场所，当前 %d", len(cfg.Arbitrage.Venues))
		}
		return Scenario{ID: "2", Name: scenarioArbitrage, Venues: cfg.Arbitrage.Venues}, nil
	default:
		return Scenario{}, fmt.Errorf("%w: %q，可选 %s", ErrUnknownScenario, id, ScenarioUsage())
	}
}
