package quota

import "github.com/SmitUplenchwar2687/Folio/internal/identity"

// Op names the accountant operation that produced an Event.
type Op string

const (
	OpQuery  Op = "query"
	OpRecord Op = "record"
)

// Outcome classifies an Event.
type Outcome string

const (
	OutcomeQueried      Outcome = "queried"
	OutcomeAllowed      Outcome = "allowed"
	OutcomeDenied       Outcome = "denied"
	OutcomeExempt       Outcome = "exempt"
	OutcomeUnidentified Outcome = "unidentified"
	OutcomeError        Outcome = "error"
)

// Event describes one accountant decision.
type Event struct {
	Op      Op
	Outcome Outcome
	Key     string
	Client  identity.Client
	State   State
	Limit   int64
	Err     error
}

// Fanout returns a hook that calls each non-nil fn in order.
func Fanout(fns ...func(Event)) func(Event) {
	var hooks []func(Event)
	for _, fn := range fns {
		if fn != nil {
			hooks = append(hooks, fn)
		}
	}
	return func(ev Event) {
		for _, fn := range hooks {
			fn(ev)
		}
	}
}
