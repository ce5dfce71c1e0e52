package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/roach88/rxsql/internal/testutil"
	"github.com/roach88/rxsql/reactive"
	"github.com/roach88/rxsql/subscription"
)

// ErrScenarioFailure is returned by a transaction body declared with
// fail: true.
var ErrScenarioFailure = errors.New("scenario transaction failure")

// Harness executes one scenario against one store.
type Harness struct {
	store    *reactive.Store
	recorder *testutil.Recorder
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger routes store and harness logs to l. Logs are discarded by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario in a fresh in-memory database and returns the
// result. The error is non-nil only when the scenario could not be set up;
// failed expectations are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := reactive.Open(":memory:",
		reactive.WithLogger(cfg.logger),
		reactive.WithIDGenerator(subscription.NewSequenceGenerator("sub")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		recorder: testutil.NewRecorder(),
		logger:   cfg.logger,
	}

	if scenario.Schema != "" {
		if err := st.Exec(ctx, scenario.Schema); err != nil {
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	for _, sub := range scenario.Subscriptions {
		h.subscribe(sub)
	}

	result := NewResult()
	h.executeSteps(ctx, "", scenario.Steps, result)

	for name, n := range h.recorder.Counts() {
		result.Counts[name] = n
	}
	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) subscribe(sub SubscriptionSpec) {
	fn := h.recorder.Listener(sub.Name)
	switch sub.Kind {
	case KindTable:
		h.store.Subscribe(sub.Tables, fn)
	case KindQuery:
		h.store.SubscribeQuery(sub.SQL, fn)
	case KindRow:
		h.store.SubscribeWithRowFilter(sub.SQL, sub.Params, fn)
	}
}

// executeSteps runs steps in order, appending one trace entry per step.
// The first step error aborts the remaining steps at this level and is
// returned so an enclosing transaction can roll back.
func (h *Harness) executeSteps(ctx context.Context, prefix string, steps []Step, result *Result) error {
	for i := range steps {
		step := &steps[i]
		id := prefix + strconv.Itoa(i+1)

		mark := h.recorder.Mark()
		// reserve the slot so nested steps trace after their parent
		slot := len(result.Trace)
		result.Trace = append(result.Trace, StepTrace{Step: id, Kind: step.kind()})

		err := h.execute(ctx, id, step, result)
		entry := &result.Trace[slot]
		entry.Notified = h.recorder.Since(mark)
		if err != nil {
			entry.Error = err.Error()
		}

		h.logger.Debug("step completed",
			"step", id,
			"kind", entry.Kind,
			"notified", entry.Notified,
			"error", err,
		)

		if step.Expect != nil && !sameNames(*step.Expect, entry.Notified) {
			result.AddError(fmt.Sprintf("step %s (%s): expected notifications %v, got %v",
				id, entry.Kind, *step.Expect, entry.Notified))
		}

		switch {
		case err != nil && step.ExpectError:
			continue
		case err == nil && step.ExpectError:
			result.AddError(fmt.Sprintf("step %s (%s): expected an error", id, entry.Kind))
		case err != nil:
			var reported *reportedError
			if !errors.As(err, &reported) {
				result.AddError(fmt.Sprintf("step %s (%s): %v", id, entry.Kind, err))
				err = &reportedError{err: err}
			}
			return err
		}
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, id string, step *Step, result *Result) error {
	switch {
	case step.Run != nil:
		_, err := h.store.Run(ctx, step.Run.SQL, step.Run.Params...)
		return err
	case step.Exec != "":
		return h.store.Exec(ctx, step.Exec)
	case step.Invalidate != nil:
		h.store.Invalidate(step.Invalidate.Tables...)
		return nil
	case step.InvalidateRows != nil:
		r := step.InvalidateRows
		h.store.InvalidateRows(r.Table, r.Column, r.Values...)
		return nil
	case step.Transaction != nil:
		tx := step.Transaction
		err := h.store.Transaction(ctx, func(ctx context.Context) error {
			if err := h.executeSteps(ctx, id+".", tx.Steps, result); err != nil {
				return err
			}
			if tx.Fail {
				return ErrScenarioFailure
			}
			return nil
		})
		if tx.Fail && errors.Is(err, ErrScenarioFailure) {
			// the declared failure is the expected outcome
			return nil
		}
		return err
	}
	return fmt.Errorf("step %s has no operation", id)
}

// reportedError marks a step error already added to the result, so the
// enclosing transaction step does not report it again.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// sameNames compares two name lists as multisets.
func sameNames(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	a, b := slices.Clone(want), slices.Clone(got)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
