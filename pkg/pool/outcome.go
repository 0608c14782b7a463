package pool

// Outcome is the result of a fan-out call: the payload (Val, often unit)
// plus which relays accepted the operation and which rejected it and why.
// A relay contributes to exactly one of Success/Failed, never both.
type Outcome[T any] struct {
	Val     T
	Success map[string]struct{}
	Failed  map[string]string
}

// NewOutcome returns a zero-valued Outcome with both maps initialized.
func NewOutcome[T any](val T) *Outcome[T] {
	return &Outcome[T]{
		Val:     val,
		Success: make(map[string]struct{}),
		Failed:  make(map[string]string),
	}
}

// Ok records url as having accepted the operation.
func (o *Outcome[T]) Ok(url string) { o.Success[url] = struct{}{} }

// Err records url as having rejected the operation with the given error.
func (o *Outcome[T]) Err(url string, err error) { o.Failed[url] = err.Error() }

// IsEmpty reports whether no relay succeeded — the fan-out postcondition
// that turns an Outcome into a KindFailed error.
func (o *Outcome[T]) IsEmpty() bool { return len(o.Success) == 0 }

// Merge unions two outcomes' success sets and failure maps, keeping the
// earliest-recorded error message for any URL present in both failure maps.
// Val is left as the receiver's; callers merging outcomes with meaningful
// Val payloads (e.g. *wire.Reconciliation) merge Val separately first.
func (o *Outcome[T]) Merge(other *Outcome[T]) {
	if other == nil {
		return
	}
	for url := range other.Success {
		o.Success[url] = struct{}{}
	}
	for url, msg := range other.Failed {
		if _, already := o.Failed[url]; !already {
			o.Failed[url] = msg
		}
	}
}
