package invoker

import (
	"context"

	"github.com/loomwork/loom/internal/registry"
)

// Composite is an ordered list of invokers; it chooses the first whose
// Supports(skill) returns true, except when metadata.invoker_type names
// a registered kind explicitly, in which case it routes directly to that
// invoker (spec.md §4.D).
type Composite struct {
	byType map[string]Invoker
	chain  []Invoker
}

// NewComposite builds a Composite over chain, in priority order. typed
// additionally registers invokers by the InvokerType string they answer
// to, for direct routing when a skill sets metadata.invoker_type.
func NewComposite(chain []Invoker, typed map[string]Invoker) *Composite {
	return &Composite{byType: typed, chain: chain}
}

func (c *Composite) Supports(skill *registry.Skill) bool {
	if skill.Metadata.InvokerType != "" {
		_, ok := c.byType[skill.Metadata.InvokerType]
		return ok
	}
	for _, inv := range c.chain {
		if inv.Supports(skill) {
			return true
		}
	}
	return false
}

func (c *Composite) Invoke(ctx context.Context, skill *registry.Skill, input map[string]any, execContext map[string]any) (Result, error) {
	if skill.Metadata.InvokerType != "" {
		inv, ok := c.byType[skill.Metadata.InvokerType]
		if !ok {
			return Result{}, newError(ErrorKindInsufficientContext, "no invoker registered for type %q on skill %s", skill.Metadata.InvokerType, skill.ID)
		}
		return inv.Invoke(ctx, skill, input, execContext)
	}

	for _, inv := range c.chain {
		if inv.Supports(skill) {
			return inv.Invoke(ctx, skill, input, execContext)
		}
	}
	return Result{}, newError(ErrorKindInsufficientContext, "no invoker supports skill %s", skill.ID)
}
