package definition

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/Knetic/govaluate.v3"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/biobuddy/internal/data"
	"github.com/rcliao/biobuddy/internal/generic"
	"github.com/rcliao/biobuddy/internal/model"
)

// Scalar is a number or an arithmetic expression over the document's
// variables and marker data, e.g. "0.5 * distance('HIP', 'KNEE')".
type Scalar struct {
	set   bool
	num   float64
	expr  string
}

// UnmarshalYAML accepts a number or an expression string.
func (s *Scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number or an expression", n.Line)
	}
	s.set = true
	if tag := n.ShortTag(); tag == "!!int" || tag == "!!float" {
		return n.Decode(&s.num)
	}
	s.expr = n.Value
	return nil
}

// IsSet reports whether the field was present.
func (s Scalar) IsSet() bool { return s.set }

// expressionFunctions binds the functions expressions may call to a data
// source. The first data error is kept in errp.
func expressionFunctions(d data.Source, errp *error) map[string]govaluate.ExpressionFunction {
	mean := func(arg any) (mgl64.Vec3, error) {
		name, ok := arg.(string)
		if !ok {
			return mgl64.Vec3{}, fmt.Errorf("marker name must be a string, got %v", arg)
		}
		p, err := data.MeanPosition(d, name)
		if err != nil && *errp == nil {
			*errp = err
		}
		return p, err
	}
	component := func(i int) govaluate.ExpressionFunction {
		return func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
			}
			p, err := mean(args[0])
			if err != nil {
				return nil, err
			}
			return p[i], nil
		}
	}
	return map[string]govaluate.ExpressionFunction{
		"distance": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("distance expects 2 arguments, got %d", len(args))
			}
			a, err := mean(args[0])
			if err != nil {
				return nil, err
			}
			b, err := mean(args[1])
			if err != nil {
				return nil, err
			}
			return b.Sub(a).Len(), nil
		},
		"marker_x": component(0),
		"marker_y": component(1),
		"marker_z": component(2),
	}
}

// checkExpr parses expr and checks that every variable it uses is defined.
func checkExpr(expr string, vars map[string]float64) error {
	var noErr error
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, expressionFunctions(nil, &noErr))
	if err != nil {
		return err
	}
	for _, tok := range e.Tokens() {
		if tok.Kind != govaluate.VARIABLE {
			continue
		}
		name, _ := tok.Value.(string)
		if _, ok := vars[name]; !ok && name != "pi" {
			return fmt.Errorf("undefined variable %q", name)
		}
	}
	return nil
}

// value turns s into a generic value. Expressions were checked at load time
// and are re-bound to the model and data on every evaluation.
func (s Scalar) value(vars map[string]float64) generic.Value[float64] {
	if s.expr == "" {
		return generic.Fixed(s.num)
	}
	expr := s.expr
	params := map[string]any{"pi": math.Pi}
	for k, v := range vars {
		params[k] = v
	}
	return generic.From(expr, func(_ *model.Model, d data.Source) (float64, error) {
		var dataErr error
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, expressionFunctions(d, &dataErr))
		if err != nil {
			return 0, err
		}
		out, err := e.Evaluate(params)
		if dataErr != nil {
			return 0, dataErr
		}
		if err != nil {
			return 0, fmt.Errorf("evaluate %q: %w", expr, err)
		}
		f, ok := out.(float64)
		if !ok {
			return 0, fmt.Errorf("expression %q is not numeric (got %v)", expr, out)
		}
		return f, nil
	})
}
