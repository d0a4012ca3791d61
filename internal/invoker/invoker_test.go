package invoker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/loomwork/loom/internal/invoker"
	"github.com/loomwork/loom/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholder_MocksOutputSchema(t *testing.T) {
	p := invoker.NewPlaceholder()
	skill := &registry.Skill{
		ID: "s1",
		OutputSchema: &registry.Schema{
			Type: "object",
			Properties: map[string]*registry.Schema{
				"summary": {Type: "string"},
			},
		},
	}

	result, err := p.Invoke(context.Background(), skill, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "summary")
	assert.NotEmpty(t, result.InputDigest)
	assert.NotEmpty(t, result.OutputDigest)
}

func TestPlaceholder_ValidatesInput(t *testing.T) {
	p := invoker.NewPlaceholder()
	skill := &registry.Skill{
		ID: "s1",
		InputSchema: &registry.Schema{
			Type:     "object",
			Required: []string{"goal"},
		},
	}

	_, err := p.Invoke(context.Background(), skill, map[string]any{}, nil)
	require.Error(t, err)
	var ie *invoker.Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, invoker.ErrorKindValidation, ie.Kind)
}

func TestDigest_IsDeterministic(t *testing.T) {
	p := invoker.NewPlaceholder()
	skill := &registry.Skill{ID: "s1"}

	r1, err := p.Invoke(context.Background(), skill, map[string]any{"a": 1, "b": 2}, nil)
	require.NoError(t, err)
	r2, err := p.Invoke(context.Background(), skill, map[string]any{"b": 2, "a": 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, r1.InputDigest, r2.InputDigest, "key order must not affect the digest")
}

func TestComposite_RoutesByInvokerType(t *testing.T) {
	placeholder := invoker.NewPlaceholder()
	comp := invoker.NewComposite(nil, map[string]invoker.Invoker{
		"placeholder": placeholder,
	})

	skill := &registry.Skill{ID: "s1", Metadata: registry.Metadata{InvokerType: "placeholder"}}
	assert.True(t, comp.Supports(skill))

	_, err := comp.Invoke(context.Background(), skill, map[string]any{}, nil)
	assert.NoError(t, err)
}

func TestComposite_FallsBackThroughChain(t *testing.T) {
	never := alwaysUnsupported{}
	placeholder := invoker.NewPlaceholder()
	comp := invoker.NewComposite([]invoker.Invoker{never, placeholder}, nil)

	skill := &registry.Skill{ID: "s1"}
	assert.True(t, comp.Supports(skill))
	result, err := comp.Invoke(context.Background(), skill, map[string]any{}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.OutputDigest)
}

func TestComposite_NoSupportingInvoker(t *testing.T) {
	comp := invoker.NewComposite([]invoker.Invoker{alwaysUnsupported{}}, nil)
	_, err := comp.Invoke(context.Background(), &registry.Skill{ID: "s1"}, map[string]any{}, nil)
	require.Error(t, err)
	var ie *invoker.Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, invoker.ErrorKindInsufficientContext, ie.Kind)
}

func TestMCP_RequiresConfig(t *testing.T) {
	m := invoker.NewMCP(nil)
	skill := &registry.Skill{ID: "s1"}
	_, err := m.Invoke(context.Background(), skill, map[string]any{}, nil)
	require.Error(t, err)
	var ie *invoker.Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, invoker.ErrorKindInsufficientContext, ie.Kind)
}

type alwaysUnsupported struct{}

func (alwaysUnsupported) Supports(*registry.Skill) bool { return false }
func (alwaysUnsupported) Invoke(context.Context, *registry.Skill, map[string]any, map[string]any) (invoker.Result, error) {
	return invoker.Result{}, errors.New("should never be called")
}

