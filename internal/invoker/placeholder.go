package invoker

import (
	"context"
	"fmt"

	"github.com/loomwork/loom/internal/registry"
)

// Placeholder echoes a structured stub honoring output_schema — used in
// tests and whenever no concrete backend is configured for a skill
// (spec.md §4.D). Each declared output property gets a stub of its
// declared type (a "[mock_<name>]" string when untyped or typed string);
// enum, pattern and nested required constraints are not filled in, so a
// schema using them can fail output validation. A hand-authored input
// that fails input_schema surfaces a ValidationError, since that check
// runs identically across every invoker variant.
type Placeholder struct{}

// NewPlaceholder creates a Placeholder invoker.
func NewPlaceholder() *Placeholder { return &Placeholder{} }

// Supports reports true unconditionally: Placeholder is the fallback of
// last resort.
func (p *Placeholder) Supports(skill *registry.Skill) bool { return true }

func (p *Placeholder) Invoke(ctx context.Context, skill *registry.Skill, input map[string]any, execContext map[string]any) (Result, error) {
	if err := validateInput(skill, input); err != nil {
		return Result{}, err
	}

	output := mockOutput(skill)
	if err := validateOutput(skill, output); err != nil {
		return Result{}, err
	}

	return Result{
		Output:       output,
		InputDigest:  digest(input),
		OutputDigest: digest(output),
	}, nil
}

func mockOutput(skill *registry.Skill) map[string]any {
	if skill.OutputSchema == nil || len(skill.OutputSchema.Properties) == 0 {
		return map[string]any{"result": fmt.Sprintf("skill %s executed successfully", skill.ID)}
	}
	out := make(map[string]any, len(skill.OutputSchema.Properties))
	for name, prop := range skill.OutputSchema.Properties {
		var stub any = fmt.Sprintf("[mock_%s]", name)
		if prop != nil {
			switch prop.Type {
			case "number", "integer":
				stub = 0
			case "boolean":
				stub = false
			case "array":
				stub = []any{}
			case "object":
				stub = map[string]any{}
			}
		}
		out[name] = stub
	}
	return out
}
