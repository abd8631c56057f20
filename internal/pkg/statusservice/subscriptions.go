package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is interface for websocket handling in status service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

const (
	// DefaultIdleTimeout is the max time without client messages
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultMaxWatched is the max number of workflows one connection may watch
	DefaultMaxWatched = 100
)

// Subscriptions keeps websocket connections by watched workflow IDs.
// A client sends workflow IDs separated by spaces or commas, an ID prefixed with `-` is unwatched
type Subscriptions struct {
	lock       sync.Mutex
	byID       map[string]map[*syncConn]struct{}
	byConn     map[*syncConn]map[string]struct{}
	idle       time.Duration
	maxWatched int
	// onWatch is called for a newly watched workflow
	onWatch func(WsConn, string)
}

// NewSubscriptions creates the keeper, onWatch may be nil
func NewSubscriptions(idle time.Duration, onWatch func(WsConn, string)) *Subscriptions {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Subscriptions{byID: map[string]map[*syncConn]struct{}{},
		byConn: map[*syncConn]map[string]struct{}{}, idle: idle, maxWatched: DefaultMaxWatched, onWatch: onWatch}
}

// syncConn serializes writes, the status handler and onWatch may write concurrently
type syncConn struct {
	WsConn
	wLock sync.Mutex
}

func (c *syncConn) WriteJSON(v interface{}) error {
	c.wLock.Lock()
	defer c.wLock.Unlock()
	return c.WsConn.WriteJSON(v)
}

// HandleConnection reads subscription commands until the connection fails or stays idle
func (s *Subscriptions) HandleConnection(conn WsConn) error {
	sc := &syncConn{WsConn: conn}
	defer s.drop(sc)
	defer conn.Close()

	readCh := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go s.read(conn, readCh, done)

	idleTimer := time.NewTimer(s.idle)
	defer idleTimer.Stop()
	for {
		select {
		case <-idleTimer.C:
			goapp.Log.Debug().Msg("ws idle timeout")
			return nil
		case msg, ok := <-readCh:
			if !ok {
				return nil
			}
			for _, id := range s.apply(sc, msg) {
				if s.onWatch != nil {
					s.onWatch(sc, id)
				}
			}
			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			idleTimer.Reset(s.idle)
		}
	}
}

// read passes client messages to readCh until a read fails or done is closed
func (s *Subscriptions) read(conn WsConn, readCh chan<- string, done <-chan struct{}) {
	defer close(readCh)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			goapp.Log.Debug().Err(err).Msg("ws read failed")
			return
		}
		msg := strings.TrimSpace(string(message))
		if msg == "" {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		select {
		case readCh <- msg:
		case <-done:
			return
		}
	}
}

// apply updates the watched IDs of the connection, returns newly watched IDs
func (s *Subscriptions) apply(c *syncConn, msg string) []string {
	var added []string
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, f := range strings.FieldsFunc(msg, func(r rune) bool { return r == ',' || r == ' ' }) {
		if strings.HasPrefix(f, "-") {
			s.unwatch(c, f[1:])
			continue
		}
		ids := s.byConn[c]
		if _, found := ids[f]; found {
			continue
		}
		if len(ids) >= s.maxWatched {
			goapp.Log.Warn().Int("max", s.maxWatched).Str("ID", goapp.Sanitize(f)).Msg("too many watched workflows, skip")
			continue
		}
		s.watch(c, f)
		added = append(added, f)
	}
	goapp.Log.Debug().Int("conns", len(s.byConn)).Int("workflows", len(s.byID)).Msg("subscriptions")
	return added
}

func (s *Subscriptions) watch(c *syncConn, id string) {
	goapp.Log.Info().Str("ID", goapp.Sanitize(id)).Msg("watch")
	ids, found := s.byConn[c]
	if !found {
		ids = map[string]struct{}{}
		s.byConn[c] = ids
	}
	ids[id] = struct{}{}
	conns, found := s.byID[id]
	if !found {
		conns = map[*syncConn]struct{}{}
		s.byID[id] = conns
	}
	conns[c] = struct{}{}
}

func (s *Subscriptions) unwatch(c *syncConn, id string) {
	if conns, found := s.byID[id]; found {
		delete(conns, c)
		if len(conns) == 0 {
			delete(s.byID, id)
		}
	}
	if ids, found := s.byConn[c]; found {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byConn, c)
		}
	}
}

func (s *Subscriptions) drop(c *syncConn) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for id := range s.byConn[c] {
		s.unwatch(c, id)
	}
	goapp.Log.Info().Int("conns", len(s.byConn)).Msg("ws connection closed")
}

// GetConnections returns connections watching the workflow
func (s *Subscriptions) GetConnections(id string) ([]WsConn, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	conns, found := s.byID[id]
	if !found {
		return nil, false
	}
	res := make([]WsConn, 0, len(conns))
	for c := range conns {
		res = append(res, c)
	}
	return res, true
}
