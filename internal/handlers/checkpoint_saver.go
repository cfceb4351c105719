// Package handlers provides ready-made event handlers that attach
// themselves to an engine. The checkpoint saver persists the state of
// registered modules at the end of every n-th epoch.
package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gradkit/gradkit/internal/checkpoints"
	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/events"
	"github.com/gradkit/gradkit/internal/observability/logging"
	"github.com/gradkit/gradkit/internal/observability/metrics"
	"github.com/gradkit/gradkit/internal/timing"
	"github.com/gradkit/gradkit/pkg/errors"
)

// LatestCheckpointName is the alias always pointing at the most recent
// checkpoint.
const LatestCheckpointName = "latest"

// CheckpointSaverOptions configures a CheckpointSaver.
type CheckpointSaverOptions struct {
	// Freq saves every Freq epochs. Defaults to 1.
	Freq int

	// RunID names the run in the checkpoint payload. Defaults to a
	// random UUID.
	RunID string

	// StoreName labels the checkpoint metrics. Defaults to "local".
	StoreName string

	Clock   timing.Clock
	Logger  logging.Logger
	Metrics metrics.Collector
}

// CheckpointSaver persists the state of registered Stateful modules when
// an epoch completes. It attaches itself behind an epoch-periodic
// condition, so only every Freq-th epoch writes a checkpoint.
type CheckpointSaver struct {
	store   checkpoints.Store
	freq    int
	runID   string
	label   map[string]string
	names   []string
	modules map[string]engine.Stateful
	eng     engine.Engine
	clock   timing.Clock
	log     logging.Logger
	metrics metrics.Collector
}

// NewCheckpointSaver creates a saver writing to store. Freq must be
// positive.
func NewCheckpointSaver(store checkpoints.Store, opts CheckpointSaverOptions) (*CheckpointSaver, error) {
	if opts.Freq == 0 {
		opts.Freq = 1
	}
	if opts.Freq < 0 {
		return nil, errors.ValidationErrorf("frequency must be positive (received: %d)", opts.Freq)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = timing.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopCollector()
	}
	if opts.StoreName == "" {
		opts.StoreName = "local"
	}
	return &CheckpointSaver{
		store:   store,
		freq:    opts.Freq,
		runID:   opts.RunID,
		label:   map[string]string{"store": opts.StoreName},
		modules: make(map[string]engine.Stateful),
		clock:   opts.Clock,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// RunID returns the run identifier written into every checkpoint
func (s *CheckpointSaver) RunID() string {
	return s.runID
}

// Register adds a stateful module to the checkpoint payload. Registering
// the same name twice is an error.
func (s *CheckpointSaver) Register(name string, module engine.Stateful) error {
	if _, ok := s.modules[name]; ok {
		return errors.ValidationErrorf("module already registered: %s", name)
	}
	s.modules[name] = module
	s.names = append(s.names, name)
	return nil
}

// Attach subscribes the saver to the train-epoch-completed event. It can
// attach to one engine only.
func (s *CheckpointSaver) Attach(eng engine.Engine) error {
	if s.eng != nil {
		return errors.StateError("checkpoint saver is already attached")
	}
	s.eng = eng
	cond, err := events.NewEpochPeriodicCondition(eng, s.freq)
	if err != nil {
		return err
	}
	handler := events.NewConditionalHandler(&saverHandler{saver: s}, cond)
	events.AddUniqueEventHandler(eng, engine.TrainEpochCompleted, handler, s.log)
	return nil
}

// CheckpointName returns the name used for the given epoch
func (s *CheckpointSaver) CheckpointName(epoch int) string {
	return fmt.Sprintf("epoch-%04d", epoch)
}

// Save writes one checkpoint for the engine's current epoch, plus the
// "latest" alias
func (s *CheckpointSaver) Save(ctx context.Context) error {
	if s.eng == nil {
		return errors.StateError("checkpoint saver is not attached")
	}
	start := s.clock.Now()
	state := map[string]any{
		"run_id":    s.runID,
		"epoch":     s.eng.Epoch(),
		"iteration": s.eng.Iteration(),
	}
	modules := make(map[string]any, len(s.names))
	for _, name := range s.names {
		modules[name] = s.modules[name].StateDict()
	}
	state["modules"] = modules

	name := s.CheckpointName(s.eng.Epoch())
	for _, target := range []string{name, LatestCheckpointName} {
		if err := s.store.Save(ctx, target, state); err != nil {
			s.metrics.IncrementCounter("checkpoint_errors_total", s.label)
			return err
		}
	}
	s.metrics.IncrementCounter("checkpoints_saved_total", s.label)
	s.metrics.ObserveHistogram("checkpoint_save_duration_seconds",
		s.clock.Now().Sub(start).Seconds(), s.label)
	s.log.Info("checkpoint saved",
		logging.String("name", name),
		logging.String("run_id", s.runID),
		logging.Int("epoch", s.eng.Epoch()))
	return nil
}

// Restore loads a checkpoint and pushes the module states back into the
// registered modules
func (s *CheckpointSaver) Restore(ctx context.Context, name string) error {
	state, err := s.store.Load(ctx, name)
	if err != nil {
		return err
	}
	raw, ok := state["modules"].(map[string]any)
	if !ok {
		return errors.ValidationError("checkpoint has no module states")
	}
	for _, moduleName := range s.names {
		nested, ok := raw[moduleName].(map[string]any)
		if !ok {
			return errors.ValidationErrorf("checkpoint is missing module state: %s", moduleName)
		}
		if err := s.modules[moduleName].LoadStateDict(nested); err != nil {
			return err
		}
	}
	return nil
}

// saverHandler adapts the saver to the event-handler surface. Two
// handlers are equal when they belong to the same saver.
type saverHandler struct {
	saver *CheckpointSaver
}

func (h *saverHandler) Handle(ctx context.Context) error {
	return h.saver.Save(ctx)
}

func (h *saverHandler) Equal(other engine.EventHandler) bool {
	o, ok := other.(*saverHandler)
	return ok && h.saver == o.saver
}
