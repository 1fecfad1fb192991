package dispatch

// Status classifies the outcome of executing one backend action.
type Status int

const (
	// StatusNoOp means nothing happened: no action was named, the action was
	// unknown, or an edit/delete target could not be resolved.
	StatusNoOp Status = iota
	// StatusSent means the platform call succeeded; MessageID is the message
	// it produced or affected.
	StatusSent
	// StatusFailed means the platform rejected the call. The failure is
	// logged and never surfaced to the chat user.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return "noop"
	}
}

// Result is the outcome of one dispatch cycle.
type Result struct {
	Status    Status
	MessageID int
	Err       error
}

// Sent reports a successful platform call on messageID.
func Sent(messageID int) Result {
	return Result{Status: StatusSent, MessageID: messageID}
}

// NoOp reports that the cycle produced no platform call.
func NoOp() Result {
	return Result{Status: StatusNoOp}
}

// Failed reports a rejected platform call.
func Failed(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}
