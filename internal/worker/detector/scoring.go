package detector

import (
	"math"

	"web3-radar/internal/worker/config"
)

// StrongRuleScore 多证据要求的单条规则最低原始分
const StrongRuleScore = 15

// Tier 信号级别
type Tier int

const (
	TierNone Tier = iota
	TierCandidate
	TierAlert
)

func (t Tier) String() string {
	switch t {
	case TierCandidate:
		return "candidate"
	case TierAlert:
		return "alert"
	default:
		return "none"
	}
}

// RawScore 已触发规则的原始分之和
func RawScore(results []Result) float64 {
	var raw float64
	for _, r := range results {
		if r.Triggered && r.Score > 0 {
			raw += r.Score
		}
	}
	return raw
}

// CalculateFinalScore round(min(100, raw/max*100))，结果在 [0, 100]
func CalculateFinalScore(results []Result, cfg config.DetectionConfig) float64 {
	raw := RawScore(results)
	if raw <= 0 || cfg.MaxPossibleScore <= 0 {
		return 0
	}
	score := math.Round(math.Min(100, raw/cfg.MaxPossibleScore*100))
	return math.Max(0, math.Min(100, score))
}

func IsCandidate(score float64, cfg config.DetectionConfig) bool {
	return score >= cfg.CandidateThreshold
}

func IsAlert(score float64, cfg config.DetectionConfig) bool {
	return score >= cfg.AlertThreshold
}

// HasMultiEvidence 至少两条已触发规则原始分 >= 15
func HasMultiEvidence(results []Result) bool {
	strong := 0
	for _, r := range results {
		if r.Triggered && r.Score >= StrongRuleScore {
			strong++
		}
	}
	return strong >= 2
}

// Classification 分级结果；Downgraded 表示达到告警分数但缺少多证据
type Classification struct {
	Tier       Tier
	Downgraded bool
}

// Classify 告警级别必须有多证据，否则降为候选，分数不变
func Classify(score float64, results []Result, cfg config.DetectionConfig) Classification {
	switch {
	case IsAlert(score, cfg) && HasMultiEvidence(results):
		return Classification{Tier: TierAlert}
	case IsAlert(score, cfg):
		return Classification{Tier: TierCandidate, Downgraded: true}
	case IsCandidate(score, cfg):
		return Classification{Tier: TierCandidate}
	default:
		return Classification{Tier: TierNone}
	}
}
