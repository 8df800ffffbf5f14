package condition

import (
	"context"
	"log/slog"

	"github.com/parleyhq/parley/pkg/domain"
)

// Kind selects the combination policy for an evaluation.
type Kind string

const (
	// KindWhen gates eligibility: predicates combine with AND, and a spec
	// with no predicates is vacuously true.
	KindWhen Kind = "when"

	// KindSkipIf gates bypassing: predicates combine with OR, and a spec
	// with no predicates is vacuously false (strings alone never skip).
	KindSkipIf Kind = "skipIf"
)

// Evaluation is the outcome of evaluating one specification.
type Evaluation struct {
	// Programmatic is the combined predicate result under the kind's
	// policy, or the kind's vacuous value when no predicates were present.
	Programmatic bool

	// AIContext holds literal strings in order of first appearance. They
	// are forwarded to the model, not evaluated.
	AIContext []string

	// HasProgrammatic reports whether at least one predicate was found.
	HasProgrammatic bool
}

// Evaluator walks condition specifications. The zero value is usable; a
// logger can be attached for predicate failure diagnostics.
type Evaluator struct {
	logger *slog.Logger
}

// New creates an Evaluator. A nil logger disables logging.
func New(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate flattens spec recursively and combines predicate results under
// the policy for kind. It is pure apart from whatever the predicates read;
// predicates must not mutate state.
func (e *Evaluator) Evaluate(ctx context.Context, kind Kind, spec domain.Condition, tc *domain.TemplateContext) Evaluation {
	res := Evaluation{}
	e.walk(ctx, kind, spec, tc, &res)
	if !res.HasProgrammatic {
		res.Programmatic = kind == KindWhen
	}
	return res
}

func (e *Evaluator) walk(ctx context.Context, kind Kind, spec domain.Condition, tc *domain.TemplateContext, res *Evaluation) {
	switch c := spec.(type) {
	case nil:
		// Absent spec contributes nothing.
	case domain.Literal:
		if c != "" {
			res.AIContext = append(res.AIContext, string(c))
		}
	case domain.Predicate:
		ok := e.invoke(ctx, c, tc)
		if !res.HasProgrammatic {
			res.HasProgrammatic = true
			res.Programmatic = ok
			return
		}
		if kind == KindSkipIf {
			res.Programmatic = res.Programmatic || ok
		} else {
			res.Programmatic = res.Programmatic && ok
		}
	case domain.Group:
		for _, nested := range c {
			e.walk(ctx, kind, nested, tc, res)
		}
	default:
		// Unknown condition shapes are ignored: they contribute to
		// neither the AND/OR result nor the AI context list.
	}
}

// invoke runs a predicate, converting errors and panics into false.
func (e *Evaluator) invoke(ctx context.Context, pred domain.Predicate, tc *domain.TemplateContext) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Warn("condition predicate panicked", "panic", r)
			}
			ok = false
		}
	}()
	result, err := pred(ctx, tc)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("condition predicate failed", "err", err)
		}
		return false
	}
	return result
}
