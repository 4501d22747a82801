// internal/service/inventory/application/policy.go
package application

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// EarmarkPolicy 是预留准入策略：一条在预留执行前评估的 CEL 表达式。
// 可用变量: asset(string), quantity(int), available(int)。
// 表达式来自配置，运维可以在不改代码的情况下收紧准入规则，
// 比如限制单笔预留的最大数量。
type EarmarkPolicy struct {
	expr string
	prg  cel.Program
}

// NewEarmarkPolicy 编译表达式。表达式本身的语法错误在启动时暴露。
func NewEarmarkPolicy(expr string) (*EarmarkPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("asset", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("available", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile earmark policy %q", expr)
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("earmark policy %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build earmark policy program %q", expr)
	}
	return &EarmarkPolicy{expr: expr, prg: prg}, nil
}

// Allow 评估策略。评估本身出错视为拒绝并返回错误。
func (p *EarmarkPolicy) Allow(assetName string, quantity, available int64) (bool, error) {
	out, _, err := p.prg.Eval(map[string]interface{}{
		"asset":     assetName,
		"quantity":  quantity,
		"available": available,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate earmark policy %q", p.expr)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("earmark policy %q returned non-bool value %v", p.expr, out.Value())
	}
	return allowed, nil
}
