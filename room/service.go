package room

import (
	"github.com/sirupsen/logrus"

	"arena/eventbus"
	"arena/logger"
	"arena/protocol"
)

// Service is the session facade used by transports and command handlers.
// Only InitializeSession creates sessions; the other operations fail with
// ErrSessionStopped once a session has been closed.
type Service struct {
	registry *Registry
	bus      *eventbus.Bus
	log      logrus.FieldLogger
}

func NewService(bus *eventbus.Bus, opts Options) *Service {
	s := &Service{bus: bus, log: opts.Logger}
	if s.log == nil {
		s.log = logger.Log
	}
	s.registry = NewRegistry(func(id string) *Session {
		sess := NewSession(id, opts)
		sess.Subscribe(s.publisher(id))
		s.log.WithField("session", id).Info("session started")
		return sess
	})
	return s
}

func (s *Service) publisher(id string) Observer {
	return ObserverFuncs{
		Next: func(state protocol.ArenaState) {
			eventbus.Publish(s.bus, SnapshotReady{ConnectionID: id, State: state})
		},
		Error: func(err error) {
			eventbus.Publish(s.bus, SessionFailed{ConnectionID: id, Err: err})
		},
		Completed: func() {
			s.log.WithField("session", id).Info("session ended")
			eventbus.Publish(s.bus, SessionEnded{ConnectionID: id})
		},
	}
}

// InitializeSession makes sure id has a running session whose states are
// published on the bus.
func (s *Service) InitializeSession(id string) *Session {
	return s.registry.GetOrCreate(id)
}

func (s *Service) CloseSession(id string) bool {
	return s.registry.Close(id)
}

func (s *Service) session(id string) (*Session, error) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return nil, ErrSessionStopped
	}
	return sess, nil
}

func (s *Service) Snapshot(id string) (protocol.ArenaState, error) {
	sess, err := s.session(id)
	if err != nil {
		return protocol.ArenaState{}, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) MovePlayer(id string, x, y float64) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	return sess.SetPlayerTarget(x, y)
}

// PublishSnapshot pushes the current state of id's session to the bus in
// tick order with its periodic states.
func (s *Service) PublishSnapshot(id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	return sess.Publish()
}

func (s *Service) Sessions() []Info {
	return s.registry.List()
}

func (s *Service) Len() int {
	return s.registry.Len()
}

// Close stops every session.
func (s *Service) Close() {
	s.registry.CloseAll()
}
