package testutil

import "slices"

// Recorder collects subscription notifications by name, in the order the
// listeners ran.
//
// Not safe for concurrent use; listeners run on the writer's goroutine.
type Recorder struct {
	names []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Listener returns a callback that records name each time it runs.
func (r *Recorder) Listener(name string) func() {
	return func() { r.names = append(r.names, name) }
}

// Mark returns a position for Since.
func (r *Recorder) Mark() int {
	return len(r.names)
}

// Since returns the names recorded after mark. Never nil.
func (r *Recorder) Since(mark int) []string {
	if mark >= len(r.names) {
		return []string{}
	}
	return slices.Clone(r.names[mark:])
}

// All returns every recorded name.
func (r *Recorder) All() []string {
	return r.Since(0)
}

// Count returns how many times name was recorded.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

// Counts returns the number of notifications per name.
func (r *Recorder) Counts() map[string]int {
	out := make(map[string]int)
	for _, name := range r.names {
		out[name]++
	}
	return out
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.names = nil
}
