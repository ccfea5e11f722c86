// Package policy evaluates an optional Rego guard before termination.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/lambdaterm/telemetry"
	"github.com/yairfalse/lambdaterm/types"
)

// Query is the rule the guard evaluates. Each string in the set is a
// denial reason; an empty or undefined set allows the request.
const Query = "data.lambdaterm.deny"

// Input is the document policies see as `input`
type Input struct {
	InstanceIDs []string  `json:"instance_ids"`
	Wait        bool      `json:"wait"`
	Timestamp   time.Time `json:"timestamp"`
}

// Guard holds a compiled deny query. A nil *Guard allows everything.
type Guard struct {
	name   string
	query  rego.PreparedEvalQuery
	logger *telemetry.Logger
	tracer trace.Tracer
}

// LoadGuard compiles the Rego module at path
func LoadGuard(ctx context.Context, path string, logger *telemetry.Logger) (*Guard, error) {
	src, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return NewGuard(ctx, path, string(src), logger)
}

// NewGuard compiles a Rego module
func NewGuard(ctx context.Context, name, module string, logger *telemetry.Logger) (*Guard, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}

	tracer := otel.Tracer("lambdaterm/policy")
	ctx, span := tracer.Start(ctx, "policy.load",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	prepared, err := rego.New(
		rego.Query(Query),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("compile policy %s: %w", name, err)
	}

	logger.WithContext(ctx).Debug().
		Str("policy_name", name).
		Msg("policy loaded")

	return &Guard{
		name:   name,
		query:  prepared,
		logger: logger,
		tracer: tracer,
	}, nil
}

// Check returns *types.PolicyDeniedError when any deny rule fires
func (g *Guard) Check(ctx context.Context, input Input) error {
	if g == nil {
		return nil
	}

	ctx, span := g.tracer.Start(ctx, "policy.check",
		trace.WithAttributes(
			attribute.String("policy.name", g.name),
			attribute.StringSlice("instance.ids", input.InstanceIDs),
		))
	defer span.End()

	results, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("evaluate policy %s: %w", g.name, err)
	}

	reasons := denyReasons(results)
	span.SetAttributes(attribute.Int("policy.denials", len(reasons)))

	if len(reasons) == 0 {
		g.logger.WithContext(ctx).Debug().
			Str("policy_name", g.name).
			Strs("instance_ids", input.InstanceIDs).
			Msg("termination allowed by policy")
		return nil
	}

	g.logger.WithContext(ctx).Warn().
		Str("policy_name", g.name).
		Strs("reasons", reasons).
		Msg("termination denied by policy")

	return &types.PolicyDeniedError{Reasons: reasons}
}

func denyReasons(results rego.ResultSet) []string {
	var reasons []string
	for _, res := range results {
		for _, expr := range res.Expressions {
			switch v := expr.Value.(type) {
			case []interface{}:
				for _, item := range v {
					reasons = append(reasons, fmt.Sprint(item))
				}
			case string:
				reasons = append(reasons, v)
			case bool:
				if v {
					reasons = append(reasons, "denied")
				}
			}
		}
	}
	sort.Strings(reasons)
	return reasons
}
