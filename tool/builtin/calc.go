package builtin

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"math"

	"github.com/hupe1980/agentloop/tool"
)

// CalcName is the registered name of the calculator tool.
const CalcName = "calc"

type calcArgs struct {
	Expression string `json:"expression" description:"Arithmetic expression using + - * / % and parentheses, e.g. (2+3)*4"`
}

// CalcResult is returned by the calculator tool.
type CalcResult struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// Calc returns the calculator tool.
func Calc() *tool.FunctionTool {
	return tool.NewFunctionToolFromStruct(CalcName, "Evaluate an arithmetic expression exactly and return the numeric result.", calcArgs{}, calc)
}

func calc(_ *tool.Invocation, args map[string]any) (any, error) {
	expr, _ := args["expression"].(string)
	v, err := Evaluate(expr)
	if err != nil {
		return nil, err
	}
	return CalcResult{Expression: expr, Result: v}, nil
}

// Evaluate computes an arithmetic expression with exact rational arithmetic.
// Only numeric literals, parentheses, unary +/- and the binary operators
// + - * / % are accepted; % requires integer operands.
func Evaluate(expr string) (float64, error) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	v, err := eval(node)
	if err != nil {
		return 0, err
	}
	f, _ := constant.Float64Val(constant.ToFloat(v))
	if math.IsInf(f, 0) {
		return 0, errors.New("result out of range")
	}
	return f, nil
}

func eval(node ast.Expr) (constant.Value, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, fmt.Errorf("unsupported literal %s", n.Value)
		}
		return constant.MakeFromLiteral(n.Value, n.Kind, 0), nil
	case *ast.ParenExpr:
		return eval(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.ADD && n.Op != token.SUB {
			return nil, fmt.Errorf("unsupported operator %s", n.Op)
		}
		x, err := eval(n.X)
		if err != nil {
			return nil, err
		}
		return constant.UnaryOp(n.Op, x, 0), nil
	case *ast.BinaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return nil, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return nil, err
		}
		return binary(n.Op, x, y)
	default:
		return nil, fmt.Errorf("unsupported expression %T", node)
	}
}

func binary(op token.Token, x, y constant.Value) (constant.Value, error) {
	switch op {
	case token.ADD, token.SUB, token.MUL:
		return constant.BinaryOp(x, op, y), nil
	case token.QUO:
		if constant.Sign(y) == 0 {
			return nil, errors.New("division by zero")
		}
		return constant.BinaryOp(constant.ToFloat(x), token.QUO, constant.ToFloat(y)), nil
	case token.REM:
		if x.Kind() != constant.Int || y.Kind() != constant.Int {
			return nil, errors.New("% requires integer operands")
		}
		if constant.Sign(y) == 0 {
			return nil, errors.New("division by zero")
		}
		return constant.BinaryOp(x, token.REM, y), nil
	default:
		return nil, fmt.Errorf("unsupported operator %s", op)
	}
}
