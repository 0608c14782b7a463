package wire

// NegentropyItem is a single (event id, timestamp) summary exchanged during
// set-reconciliation: the minimal description of "I have this event, and it
// was created at this time" needed to compute a delta without transferring
// full event bodies.
type NegentropyItem struct {
	Id        Id
	CreatedAt Timestamp
}

// Reconciliation is the outcome of a set-reconciliation pass against one or
// more relays for one or more filters: which event ids were sent to fill gaps on the
// remote side, which were received to fill gaps locally, and which of those
// transfers failed and why, keyed by relay URL then event id.
type Reconciliation struct {
	Sent            map[Id]struct{}
	Received        map[Id]struct{}
	SendFailures    map[string]map[Id]string
	ReceiveFailures map[string]map[Id]string
}

// NewReconciliation returns a zero-valued Reconciliation with all maps
// initialized, ready to be merged into.
func NewReconciliation() *Reconciliation {
	return &Reconciliation{
		Sent:            make(map[Id]struct{}),
		Received:        make(map[Id]struct{}),
		SendFailures:    make(map[string]map[Id]string),
		ReceiveFailures: make(map[string]map[Id]string),
	}
}

// Merge folds other into r in place: Sent/Received are unioned, and failure
// maps are merged key-wise, keeping the earliest-recorded message for any
// (url, id) pair already present.
func (r *Reconciliation) Merge(other *Reconciliation) {
	if other == nil {
		return
	}
	for id := range other.Sent {
		r.Sent[id] = struct{}{}
	}
	for id := range other.Received {
		r.Received[id] = struct{}{}
	}
	mergeFailures(r.SendFailures, other.SendFailures)
	mergeFailures(r.ReceiveFailures, other.ReceiveFailures)
}

func mergeFailures(dst, src map[string]map[Id]string) {
	for url, byId := range src {
		existing, ok := dst[url]
		if !ok {
			existing = make(map[Id]string, len(byId))
			dst[url] = existing
		}
		for id, msg := range byId {
			if _, already := existing[id]; !already {
				existing[id] = msg
			}
		}
	}
}
