package interfaces

// Emitter pushes one outbound event to a single live connection.
// Implementations must be safe for concurrent use; the quiz machine,
// the ranking broadcaster and reward delivery all share one emitter.
type Emitter interface {
	Emit(event string, payload any) error
}
