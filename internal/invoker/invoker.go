// Package invoker is the dispatch layer that actually runs a skill:
// placeholder, LLM-backed, MCP-backed, or a composite chain over all
// three. See spec.md §4.D. Grounded on
// _examples/original_source/.../skill_invoker.py's SkillInvoker ABC
// (invoke/supports_skill) and .../mcp_skill_invoker.py's MCP action
// dispatch, in the teacher's interface-plus-concrete-struct idiom (cf.
// core/providers.ProviderAdapter).
package invoker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loomwork/loom/internal/jsonschema"
	"github.com/loomwork/loom/internal/registry"
)

// ErrorKind enumerates spec.md §7's invoker-facing error taxonomy.
type ErrorKind string

const (
	ErrorKindValidation          ErrorKind = "validation_error"
	ErrorKindExecution           ErrorKind = "execution_error"
	ErrorKindTimeout             ErrorKind = "timeout_error"
	ErrorKindInsufficientContext ErrorKind = "insufficient_context"
)

// Error carries an ErrorKind alongside the underlying cause, so callers
// (the Orchestrator, the Tracker) can branch on kind without string
// matching.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Result is what an invoker produces: either a validated output, or an
// error already classified by ErrorKind.
type Result struct {
	Output      map[string]any
	InputDigest string
	OutputDigest string
}

// Invoker dispatches one skill invocation to a concrete execution backend.
type Invoker interface {
	// Supports reports whether this invoker can handle skill.
	Supports(skill *registry.Skill) bool

	// Invoke executes skill against input, enforcing timeout_ms if set on
	// skill.Metadata, and validating input/output against the skill's
	// declared schemas.
	Invoke(ctx context.Context, skill *registry.Skill, input map[string]any, execContext map[string]any) (Result, error)
}

// digest computes a stable content hash for idempotence checks
// (spec.md §4.D "the Orchestrator avoids duplicate calls using
// input_digest"). Keys are sorted by json.Marshal's deterministic
// map-key ordering, so equal maps always hash equal.
func digest(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", v))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// validateInput and validateOutput run the schema validation shared by
// every invoker variant.
func validateInput(skill *registry.Skill, input map[string]any) error {
	if skill.InputSchema == nil {
		return nil
	}
	if errs := jsonschema.Validate(skill.InputSchema, input); len(errs) > 0 {
		return newError(ErrorKindValidation, "input: %v", errs)
	}
	return nil
}

func validateOutput(skill *registry.Skill, output map[string]any) error {
	if skill.OutputSchema == nil {
		return nil
	}
	if errs := jsonschema.Validate(skill.OutputSchema, output); len(errs) > 0 {
		return newError(ErrorKindValidation, "output: %v", errs)
	}
	return nil
}

// withTimeout applies skill.Metadata.TimeoutMS to ctx if set, returning
// the (possibly unmodified) context and its cancel func.
func withTimeout(ctx context.Context, skill *registry.Skill) (context.Context, context.CancelFunc) {
	if skill.Metadata.TimeoutMS <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(skill.Metadata.TimeoutMS)*time.Millisecond)
}

// classifyTimeout reports whether err is (or wraps) a context deadline
// exceeded error, the signal the Orchestrator/Tracker treat as a timeout
// rather than a generic execution failure.
func classifyTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
