package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loomwork/loom/internal/bus"
	"github.com/loomwork/loom/internal/checkpoint"
	"github.com/loomwork/loom/internal/config"
	"github.com/loomwork/loom/internal/decomposer"
	"github.com/loomwork/loom/internal/eventsink"
	"github.com/loomwork/loom/internal/gate"
	"github.com/loomwork/loom/internal/invoker"
	"github.com/loomwork/loom/internal/orchestrator"
	"github.com/loomwork/loom/internal/registry"
	"github.com/loomwork/loom/internal/selector"
	"github.com/loomwork/loom/internal/tracker"
	"github.com/loomwork/loom/internal/workflow"
)

// disableEventsEnv is spec.md §6's "one [environment variable] to
// disable streaming event emission" — when set, the run still builds a
// Sink (orchestrator/workflow/invoker all default to a discarding noop
// sink otherwise, so this is about turning off the slog subscriber, not
// the Sink itself) but never subscribes a log handler to it.
const disableEventsEnv = "LOOM_NO_EVENTS"

// engine bundles every component a CLI command needs, assembled once per
// invocation from a project directory — the same Registry → Orchestrator
// → Workflow Executor → Checkpoint Manager chain spec.md §2's control
// flow describes.
type engine struct {
	reg         *registry.Registry
	exec        *workflow.Executor
	checkpoints *checkpoint.Manager
	sink        *eventsink.Sink
	logger      *slog.Logger
}

// buildEngine loads dir's configuration, validates it into a Registry,
// and wires every downstream component. Returned errors are always
// config/registry-level and should map to ExitConfigError.
func buildEngine(dir string) (*engine, error) {
	logger := slog.Default()

	engineCfg, err := config.LoadEngineConfig(filepath.Join(dir, "loom.yaml"))
	if err != nil {
		return nil, err
	}

	collection, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(collection)
	if err != nil {
		return nil, err
	}

	sink := eventsink.New(1024)
	if os.Getenv(disableEventsEnv) == "" {
		sink.Subscribe("", eventsink.LogHandler(logger))
	}

	llmClient, err := config.BuildLLMClient(engineCfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("cli: build llm client: %w", err)
	}

	var inv invoker.Invoker
	if llmClient != nil {
		llmInvoker := invoker.NewLLM(llmClient, engineCfg.LLM.MaxTokens, sink)
		placeholder := invoker.NewPlaceholder()
		inv = invoker.NewComposite(
			[]invoker.Invoker{llmInvoker, placeholder},
			map[string]invoker.Invoker{"llm": llmInvoker, "placeholder": placeholder},
		)
	} else {
		inv = invoker.NewPlaceholder()
	}

	tr := tracker.New(256)
	sel := selector.New(reg, tr)
	b := bus.New(bus.WithJournal())

	var decompStrategy decomposer.Strategy
	if llmClient != nil {
		decompStrategy = decomposer.NewLLMStrategy(llmClient, engineCfg.LLM.MaxTokens)
	}
	defaultRole := ""
	if roles := reg.Roles(); len(roles) > 0 {
		defaultRole = roles[0].ID
	}
	decomp := decomposer.New(decompStrategy, defaultRole)

	orch := orchestrator.New(reg, tr, sel, inv, b,
		orchestrator.WithConcurrency(engineCfg.Engine.Concurrency),
		orchestrator.WithEventSink(sink),
		orchestrator.WithDecomposer(decomp),
	)

	gates := gate.NewEvaluator()
	exec := workflow.New(reg, orch, gates, b, workflow.WithEventSink(sink))

	checkpointDir := config.ResolveCheckpointDir(dir, engineCfg.Checkpoint)
	store, err := checkpoint.NewFileStore(checkpointDir)
	if err != nil {
		return nil, err
	}
	cpMgr := checkpoint.New(store, reg.Workflow().ID, exec, b,
		checkpoint.WithMaxCheckpoints(engineCfg.Checkpoint.MaxCheckpoints))

	return &engine{reg: reg, exec: exec, checkpoints: cpMgr, sink: sink, logger: logger}, nil
}
