package search

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"go.uber.org/zap"

	"songgrab/internal/core"
)

var templateRegex = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)

// templateResolver fills {{ expression }} placeholders in descriptor params and bodies.
// It never fails: an expression that cannot be evaluated falls back to a plain
// lookup of its text in the environment, then to "".
type templateResolver struct {
	env    map[string]any
	logger *zap.Logger
}

// resolve walks node and returns a copy with every string leaf resolved to a string.
// Non-string leaves are kept as they are.
func (t *templateResolver) resolve(node any) any {
	switch v := node.(type) {
	case string:
		return t.resolveString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = t.resolve(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = t.resolve(child)
		}
		return out
	default:
		return v
	}
}

func (t *templateResolver) resolveString(s string) string {
	if !templateRegex.MatchString(s) {
		return s
	}
	return templateRegex.ReplaceAllStringFunc(s, func(m string) string {
		inner := templateRegex.FindStringSubmatch(m)[1]
		return stringify(t.evaluate(inner))
	})
}

func (t *templateResolver) evaluate(code string) any {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}

	out, err := evalExpression(code, t.env)
	if err != nil {
		t.logger.Debug("Template fell back to lookup",
			zap.Error(&core.TemplateEvaluationError{Expression: code, Err: err}))
	}
	if err == nil && out != nil {
		return out
	}
	if v, ok := t.env[code]; ok && v != nil {
		return v
	}
	return ""
}

// evalExpression compiles and runs code against env. Unknown identifiers read as nil.
func evalExpression(code string, env map[string]any) (any, error) {
	program, err := expr.Compile(code, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
