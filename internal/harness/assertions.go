package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rxsql/reactive"
	"github.com/roach88/rxsql/sqldeps"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Trace    []StepTrace // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, step := range e.Trace {
			fmt.Fprintf(&buf, "  [%s] %s -> %v\n", step.Step, step.Kind, step.Notified)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(ctx context.Context, st *reactive.Store, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertNotificationCount:
			err = assertNotificationCount(result, a)
		case AssertFinalState:
			err = assertFinalState(ctx, st, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertNotificationCount checks the total notifications of one
// subscription over the whole scenario.
func assertNotificationCount(result *Result, a Assertion) error {
	got := result.Counts[a.Subscription]
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertNotificationCount,
		Expected: fmt.Sprintf("%d notifications of %s", a.Count, a.Subscription),
		Actual:   fmt.Sprintf("%d notifications", got),
		Trace:    result.Trace,
	}
}

// assertFinalState runs the assertion query and compares its rows, in
// order, with the expected rows. Only the columns named in an expected row
// are compared, using the same value equality as row filters, so 1 and
// "1" are equal.
func assertFinalState(ctx context.Context, st *reactive.Store, a Assertion) error {
	rows, err := st.Query(ctx, a.SQL, a.Params...)
	if err != nil {
		return fmt.Errorf("final_state query failed: %w", err)
	}

	if len(rows) != len(a.Rows) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d rows from %q", len(a.Rows), a.SQL),
			Actual:   fmt.Sprintf("%d rows: %v", len(rows), rows),
		}
	}
	for i, want := range a.Rows {
		for col, wantVal := range want {
			gotVal, ok := rows[i][col]
			if !ok {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("row %d has column %q", i, col),
					Actual:   fmt.Sprintf("columns %v", columnNames(rows[i])),
				}
			}
			if sqldeps.ValueKey(gotVal) != sqldeps.ValueKey(wantVal) {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("row %d %s = %v", i, col, wantVal),
					Actual:   fmt.Sprintf("%v", gotVal),
				}
			}
		}
	}
	return nil
}

func columnNames(row reactive.Row) []string {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
