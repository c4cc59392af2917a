package rtc

type State int

const (
	StateIdle State = iota
	StateOfferReceived
	StateAnswerSent
	StateDataChannelOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateDataChannelOpen:
		return "data-channel-open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
