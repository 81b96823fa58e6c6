package watchlist

import (
	"strings"
	"time"
)

// Kind classifies a Notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notification is a transient, user-facing message about a store operation.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Codes   []string  `json:"codes,omitempty"`
	Time    time.Time `json:"time"`
}

// Subscribe returns a channel that receives notifications. bufSize controls the
// channel buffer; slow consumers will have notifications dropped.
func (s *Store) Subscribe(bufSize int) (int, <-chan Notification) {
	ch := make(chan Notification, bufSize)
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subsMu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

// notify broadcasts to all subscribers non-blocking (drop on full). Nothing is
// sent once the store is closed.
func (s *Store) notify(kind Kind, msg string, codes ...string) {
	if s.ctx.Err() != nil {
		return
	}
	n := Notification{Kind: kind, Message: msg, Codes: codes, Time: s.now()}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func joinCodes(codes []string) string {
	return strings.Join(codes, ", ")
}
