package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/prefixscan/internal/config"
	"github.com/nao1215/prefixscan/internal/model"
)

// Run is the state of one variant's extraction as it moves through the
// pipeline.
type Run struct {
	// Settings are the resolved crawl parameters of the variant.
	Settings config.Settings

	// Result is set by CrawlStep. It may be partial if the crawl was
	// cancelled.
	Result *model.CrawlResult

	// RunID is the history database ID, set by PersistStep.
	RunID string

	// ResultPath is the words file path, set by ExportStep.
	ResultPath string

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string

	// Err is the first step error, if any.
	Err error
}

// NewRun creates a Run for the given settings.
func NewRun(s config.Settings) *Run {
	return &Run{Settings: s}
}

// Variant returns the variant name.
func (r *Run) Variant() string {
	return r.Settings.Variant
}

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Do executes the step on run. Returned errors are recorded on the run.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError keeps executing steps after one fails.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence. Cancellation is checked before each
// step; a cancelled pipeline keeps whatever the earlier steps produced.
//
// Returns the first error encountered if continueOnError is false.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"variant", run.Variant(),
				"reason", err,
			)
			if run.Err == nil {
				run.Err = err
			}
			return err
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"variant", run.Variant(),
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"variant", run.Variant(),
				"error", err,
			)

			if run.Err == nil {
				run.Err = err
			}
			if !p.continueOnError {
				return err
			}
		}

		run.PerformedSteps = append(run.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
