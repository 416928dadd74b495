package policy

import (
	"fmt"
)

// CurrentVersion is the policy document version evaluated by EvaluatePolicy.
const CurrentVersion = "2025-01-01"

// SummerizeConclusion folds conclusions in order. The first hard decision
// wins, otherwise soft ones are merged and UNSET falls back to defaultAllow.
func SummerizeConclusion(conclusions []Conclusion, defaultAllow bool) bool {
	merged := UNSET
	for _, c := range conclusions {
		if c.strong() {
			return c == ALLOW
		}
		merged = merged.Or(c)
	}
	if merged == UNSET {
		return defaultAllow
	}
	return merged == OK
}

// EvaluatePolicy runs every statement registered for action and merges the
// emits of those whose condition holds. Statements that fail to evaluate are
// skipped.
func EvaluatePolicy(doc PolicyDocument, ctx RequestContext, action string) (Conclusion, error) {
	policy, ok := doc.Versions[CurrentVersion]
	if !ok {
		return UNSET, fmt.Errorf("policy %q has no version %s", doc.Name, CurrentVersion)
	}

	conclusion := UNSET
	for _, stmt := range policy.Statements[action] {
		result, err := Eval(ctx, stmt.Condition)
		if err != nil {
			continue
		}
		if holds, _ := result.Result.(bool); holds {
			conclusion = conclusion.Or(ParseConclusion(stmt.Emit))
		}
	}
	return conclusion, nil
}

func Eval(ctx RequestContext, expr Expr) (EvalResult, error) {

	if expr.Const != nil {
		return EvalResult{
			Operator: "Const",
			Result:   expr.Const,
		}, nil
	}

	args := make([]any, 0, len(expr.Args))
	argResults := make([]EvalResult, 0, len(expr.Args))
	for _, arg := range expr.Args {
		result, err := Eval(ctx, arg)
		if err != nil {
			return EvalResult{
				Operator: expr.Operator,
				Args:     append(argResults, result),
				Error:    err.Error(),
			}, err
		}
		args = append(args, result.Result)
		argResults = append(argResults, result)
	}

	if operatorFunc, exists := operators[expr.Operator]; exists {
		result, err := operatorFunc(ctx, args)
		result.Args = argResults
		return result, err
	}

	err := fmt.Errorf("unknown operator: %s", expr.Operator)
	return EvalResult{
		Operator: expr.Operator,
		Error:    err.Error(),
	}, err
}
