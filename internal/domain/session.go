package domain

type SessionState int32

const (
	StateIdle SessionState = iota
	StateOpening
	StateCapturing
	StateStopping
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CallState mirrors the telephony states reported by the host.
type CallState string

const (
	CallRinging CallState = "RINGING"
	CallOffhook CallState = "OFFHOOK"
	CallIdle    CallState = "IDLE"
)

func ParseCallState(s string) (CallState, bool) {
	switch CallState(s) {
	case CallRinging, CallOffhook, CallIdle:
		return CallState(s), true
	}
	return "", false
}
