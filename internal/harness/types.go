package harness

// StepTrace records what one step did.
type StepTrace struct {
	// Step is the step's position, dotted for nested transaction steps
	// ("3", "3.1").
	Step string `json:"step" yaml:"step"`

	// Kind is the step's operation.
	Kind string `json:"kind" yaml:"kind"`

	// Notified lists the subscriptions notified while the step ran, in
	// notification order. For a transaction this includes the commit.
	Notified []string `json:"notified" yaml:"notified"`

	// Error is the step's error, if any.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one entry per step, nested steps included, in execution
	// order.
	Trace []StepTrace `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Counts is the total number of notifications per subscription.
	Counts map[string]int `json:"counts"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepTrace{},
		Errors: []string{},
		Counts: map[string]int{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
