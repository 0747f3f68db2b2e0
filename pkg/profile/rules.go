package profile

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// Custom rule conditions are CEL expressions over a fixed detection
// environment: confidence (double), page (int), text (string), type (string).
// A condition must evaluate to bool.
var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("page", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("type", cel.StringType),
	)
})

// CompileCondition compiles a CEL condition expression.
func CompileCondition(expr string) (cel.Program, error) {
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("profile: cel environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("profile: compile condition %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("profile: condition %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("profile: build program for %q: %w", expr, err)
	}
	return prg, nil
}

// EvaluateCondition runs a compiled condition against a detection.
func EvaluateCondition(prg cel.Program, det pii.Detection) (bool, error) {
	out, _, err := prg.Eval(map[string]any{
		"confidence": det.Confidence,
		"page":       det.PageNumber,
		"text":       det.TextContent,
		"type":       string(det.Type),
	})
	if err != nil {
		return false, fmt.Errorf("profile: evaluate condition: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("profile: condition returned %T, want bool", out.Value())
	}
	return result, nil
}

// ConditionFor compiles the condition attached to a detection type, if any.
// Returns (nil, nil) when the profile has no condition for the type.
func (p *Profile) ConditionFor(t pii.Type) (cel.Program, error) {
	rule, ok := p.CustomRules[string(t)]
	if !ok || rule.Condition == "" {
		return nil, nil
	}
	return CompileCondition(rule.Condition)
}

// ReplacementFor returns the text placeholder for a type, falling back to a
// per-type default and finally the generic placeholder.
func (p *Profile) ReplacementFor(t pii.Type) string {
	if rule, ok := p.CustomRules[string(t)]; ok && rule.ReplacementText != "" {
		return rule.ReplacementText
	}
	if repl, ok := defaultReplacements[t]; ok {
		return repl
	}
	return "[REDACTED]"
}

var defaultReplacements = map[pii.Type]string{
	pii.TypeName:        "[NAME REDACTED]",
	pii.TypeEmail:       "[EMAIL REDACTED]",
	pii.TypePhone:       "[PHONE REDACTED]",
	pii.TypeAddress:     "[ADDRESS REDACTED]",
	pii.TypeSSN:         "[SSN REDACTED]",
	pii.TypeIDNumber:    "[ID REDACTED]",
	pii.TypeCreditCard:  "[CARD REDACTED]",
	pii.TypeDateOfBirth: "[DOB REDACTED]",
	pii.TypeIPAddress:   "[IP REDACTED]",
}
