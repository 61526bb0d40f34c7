// Package relay forwards integer events raised by the native engine during a
// blocking call into caller-supplied callbacks.
package relay

import "github.com/rs/zerolog"

// Kinds of events a relay carries.
const (
	KindProgress = "progress"
	KindSegment  = "segment"
)

// Relay forwards each engine event to one callback, synchronously and in the
// order the engine raises them. It never queues, reorders or spawns
// goroutines. A Relay is scoped to a single native call and is sealed when
// that call returns.
type Relay struct {
	kind   string
	fn     func(int)
	log    zerolog.Logger
	count  int
	sealed bool
}

// New returns a relay for fn. A nil fn is allowed and discards events.
func New(kind string, fn func(int), logger zerolog.Logger) *Relay {
	return &Relay{
		kind: kind,
		fn:   fn,
		log:  logger.With().Str("component", "relay").Str("kind", kind).Logger(),
	}
}

// Invoke forwards v. Events arriving after Seal are dropped: the engine must
// not keep a relay past the call it was issued for.
func (r *Relay) Invoke(v int) {
	if r.sealed {
		r.log.Warn().Int("value", v).Msg("event after call returned; dropped")
		return
	}
	r.count++
	if r.fn != nil {
		r.fn(v)
	}
}

// Func returns Invoke as a plain function value for APIs that take func(int).
func (r *Relay) Func() func(int) { return r.Invoke }

// Seal ends the relay's scope.
func (r *Relay) Seal() { r.sealed = true }

// Count returns the number of forwarded events.
func (r *Relay) Count() int { return r.count }

// Kind returns the event kind this relay carries.
func (r *Relay) Kind() string { return r.kind }
