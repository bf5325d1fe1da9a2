package watch

// State is the watch session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateSubscribed
	StateProcessing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateProcessing:
		return "processing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Termination reasons.
const (
	ReasonBudgetExhausted = "budget_exhausted"
	ReasonCancelled       = "cancelled"
	ReasonStreamClosed    = "stream_closed"
	ReasonOpenFailed      = "open_failed"
)

// seenSet remembers the most recent signatures so a frame redelivered
// after a resubscribe is not processed twice.
type seenSet struct {
	keys  map[string]struct{}
	order []string
	next  int
}

func newSeenSet(size int) *seenSet {
	if size <= 0 {
		size = 1024
	}
	return &seenSet{keys: make(map[string]struct{}, size), order: make([]string, size)}
}

// add returns false if key was already present.
func (s *seenSet) add(key string) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	if old := s.order[s.next]; old != "" {
		delete(s.keys, old)
	}
	s.order[s.next] = key
	s.next = (s.next + 1) % len(s.order)
	s.keys[key] = struct{}{}
	return true
}
