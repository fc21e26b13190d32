package detector

import (
	"context"
	"fmt"
	"strings"
)

// MissingInputs 规则所需但当前不可用的输入
func MissingInputs(rule Rule, ec *EvalContext) []Input {
	var missing []Input
	for _, in := range rule.Requires() {
		if !ec.has(in) {
			missing = append(missing, in)
		}
	}
	return missing
}

// EvaluateGuarded 缺少输入时不调用规则，直接返回未触发并注明缺失字段；
// 规则返回的分数被约束在 [0, MaxScore]
func EvaluateGuarded(ctx context.Context, rule Rule, ec *EvalContext) Result {
	if missing := MissingInputs(rule, ec); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		return Result{
			RuleName: rule.Name(),
			Reason:   fmt.Sprintf("missing required input: %s", strings.Join(names, ", ")),
			Evidence: map[string]interface{}{"missing": names},
			Guarded:  true,
		}
	}

	res := rule.Evaluate(ctx, ec)
	res.RuleName = rule.Name()
	if res.Triggered && res.Score <= 0 {
		res.Triggered = false
		res.Reason = fmt.Sprintf("non-positive score coerced: %s", res.Reason)
	}
	if !res.Triggered {
		res.Score = 0
	}
	if res.Score > rule.MaxScore() {
		res.Score = rule.MaxScore()
	}
	return res
}
