package room

import "arena/protocol"

// Observer receives a session's snapshots. Calls for one session are
// serialized and happen in publication order. Callbacks run on the session's
// goroutine and must not block, subscribe, or stop the session.
type Observer interface {
	OnNext(state protocol.ArenaState)
	OnError(err error)
	OnCompleted()
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Next      func(protocol.ArenaState)
	Error     func(error)
	Completed func()
}

func (o ObserverFuncs) OnNext(s protocol.ArenaState) {
	if o.Next != nil {
		o.Next(s)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o ObserverFuncs) OnCompleted() {
	if o.Completed != nil {
		o.Completed()
	}
}
