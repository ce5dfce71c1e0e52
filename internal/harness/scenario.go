package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Scenario is one notification test.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is executed before subscriptions are registered.
	Schema string `yaml:"schema,omitempty"`

	// Subscriptions are registered in order after the schema runs.
	Subscriptions []SubscriptionSpec `yaml:"subscriptions"`

	// Steps drive the store.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Subscription kinds.
const (
	KindTable = "table" // Subscribe(tables)
	KindQuery = "query" // SubscribeQuery(sql)
	KindRow   = "row"   // SubscribeWithRowFilter(sql, params)
)

// SubscriptionSpec declares a named subscription.
type SubscriptionSpec struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Tables []string `yaml:"tables,omitempty"`
	SQL    string   `yaml:"sql,omitempty"`
	Params []any    `yaml:"params,omitempty"`
}

// Step is one operation. Exactly one of the operation fields is set.
type Step struct {
	Run            *RunStep            `yaml:"run,omitempty"`
	Exec           string              `yaml:"exec,omitempty"`
	Invalidate     *InvalidateStep     `yaml:"invalidate,omitempty"`
	InvalidateRows *InvalidateRowsStep `yaml:"invalidate_rows,omitempty"`
	Transaction    *TransactionStep    `yaml:"transaction,omitempty"`

	// Expect is the exact list of subscriptions this step notifies, in any
	// order. Nil means unchecked.
	Expect *[]string `yaml:"expect,omitempty"`

	// ExpectError makes a failing step pass and a succeeding one fail.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// RunStep is a parametrized write.
type RunStep struct {
	SQL    string `yaml:"sql"`
	Params []any  `yaml:"params,omitempty"`
}

// InvalidateStep invalidates tables by hand.
type InvalidateStep struct {
	Tables []string `yaml:"tables,omitempty"`
}

// InvalidateRowsStep invalidates rows by hand.
type InvalidateRowsStep struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
	Values []any  `yaml:"values"`
}

// TransactionStep runs nested steps in one transaction.
type TransactionStep struct {
	Steps []Step `yaml:"steps"`
	Fail  bool   `yaml:"fail,omitempty"`
}

// kind names the operation of a step for traces and errors.
func (s *Step) kind() string {
	switch {
	case s.Run != nil:
		return "run"
	case s.Exec != "":
		return "exec"
	case s.Invalidate != nil:
		return "invalidate"
	case s.InvalidateRows != nil:
		return "invalidate_rows"
	case s.Transaction != nil:
		return "transaction"
	}
	return ""
}

func (s *Step) operations() int {
	n := 0
	for _, set := range []bool{s.Run != nil, s.Exec != "", s.Invalidate != nil, s.InvalidateRows != nil, s.Transaction != nil} {
		if set {
			n++
		}
	}
	return n
}

// Assertion types.
const (
	AssertNotificationCount = "notification_count"
	AssertFinalState        = "final_state"
)

// Assertion is checked after every step has run.
type Assertion struct {
	// Type is notification_count or final_state.
	Type string `yaml:"type"`

	// Subscription and Count are used by notification_count: the total
	// number of times the subscription was notified over the scenario.
	Subscription string `yaml:"subscription,omitempty"`
	Count        int    `yaml:"count,omitempty"`

	// SQL, Params and Rows are used by final_state: the query must return
	// exactly Rows, compared column by column on the listed columns.
	SQL    string           `yaml:"sql,omitempty"`
	Params []any            `yaml:"params,omitempty"`
	Rows   []map[string]any `yaml:"rows,omitempty"`
}

// LoadScenario reads a scenario from a .yaml, .yml or .cue file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if filepath.Ext(path) == ".cue" {
		data, err = cueToJSON(path, data)
		if err != nil {
			return nil, err
		}
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario decodes YAML (or JSON) scenario text and validates it.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// cueToJSON evaluates a CUE scenario and exports it as JSON, which the
// YAML decoder accepts. A top-level `scenario` field is used when present.
func cueToJSON(path string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	if nested := value.LookupPath(cue.ParsePath("scenario")); nested.Exists() {
		value = nested
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE scenario is not concrete: %w", err)
	}
	out, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("exporting CUE scenario: %w", err)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Subscriptions))
	for i, sub := range s.Subscriptions {
		if sub.Name == "" {
			return fmt.Errorf("subscriptions[%d]: name is required", i)
		}
		if names[sub.Name] {
			return fmt.Errorf("subscriptions[%d]: duplicate name %q", i, sub.Name)
		}
		names[sub.Name] = true

		switch sub.Kind {
		case KindTable:
			if len(sub.Tables) == 0 {
				return fmt.Errorf("subscriptions[%d]: tables is required for kind table", i)
			}
		case KindQuery, KindRow:
			if sub.SQL == "" {
				return fmt.Errorf("subscriptions[%d]: sql is required for kind %s", i, sub.Kind)
			}
		default:
			return fmt.Errorf("subscriptions[%d]: unknown kind %q", i, sub.Kind)
		}
	}

	if err := validateSteps("steps", s.Steps, names); err != nil {
		return err
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, names); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(path string, steps []Step, names map[string]bool) error {
	for i := range steps {
		step := &steps[i]
		where := fmt.Sprintf("%s[%d]", path, i)

		if n := step.operations(); n != 1 {
			return fmt.Errorf("%s: exactly one of run, exec, invalidate, invalidate_rows, transaction is required (found %d)", where, n)
		}
		switch {
		case step.Run != nil && step.Run.SQL == "":
			return fmt.Errorf("%s.run: sql is required", where)
		case step.InvalidateRows != nil && (step.InvalidateRows.Table == "" || step.InvalidateRows.Column == ""):
			return fmt.Errorf("%s.invalidate_rows: table and column are required", where)
		case step.Transaction != nil:
			if err := validateSteps(where+".transaction.steps", step.Transaction.Steps, names); err != nil {
				return err
			}
		}
		if step.Expect != nil {
			for _, name := range *step.Expect {
				if !names[name] {
					return fmt.Errorf("%s.expect: unknown subscription %q", where, name)
				}
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, names map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertNotificationCount:
		if !names[a.Subscription] {
			return fmt.Errorf("assertions[%d]: unknown subscription %q", index, a.Subscription)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if a.SQL == "" {
			return fmt.Errorf("assertions[%d]: sql is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
