// Package wsserver bridges websocket connections onto a store.Store,
// speaking the wire protocol consumed by wsstore. It exists for development
// and integration testing; the production backend is an external service.
package wsserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/logging"
	"github.com/lamberthyl/chatsync/internal/store"
	"github.com/lamberthyl/chatsync/internal/store/wire"
)

// sendBuffer bounds the per-connection outbound queue. A connection that
// falls this far behind is dropped, like a dead websocket client.
const sendBuffer = 256

// Hub accepts websocket connections and serves store operations over them.
type Hub struct {
	store    store.Store
	log      logging.Logger
	upgrader websocket.Upgrader
}

func New(st store.Store, log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		store: st,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Router exposes the hub endpoints: GET /ws for the store protocol and
// GET /healthz for liveness.
func (h *Hub) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(r.Context(), "websocket upgrade failed", "err", err)
		return
	}
	s := &session{
		hub:     h,
		conn:    conn,
		send:    make(chan wire.Response, sendBuffer),
		watches: map[int64]*store.Subscription{},
	}
	go s.writePump()
	s.readPump(r)
}

// session is one connected client. Every watch it registers owns exactly one
// store subscription, released when the watch is unlistened or the
// connection goes away.
type session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan wire.Response

	mu      sync.Mutex
	watches map[int64]*store.Subscription
	closed  bool
}

func (s *session) readPump(r *http.Request) {
	defer s.teardown()
	for {
		var req wire.Request
		if err := s.conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.hub.log.Debug(r.Context(), "session read ended", "err", err)
			}
			return
		}
		s.handle(r, req)
	}
}

func (s *session) writePump() {
	for resp := range s.send {
		if err := s.conn.WriteJSON(resp); err != nil {
			// Reader notices the dead connection and tears down.
			return
		}
	}
}

func (s *session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, sub := range s.watches {
		delete(s.watches, id)
		sub.Cancel()
	}
	s.mu.Unlock()
	close(s.send)
	_ = s.conn.Close()
}

// enqueue queues an outbound frame, dropping the session if the client
// cannot keep up.
func (s *session) enqueue(resp wire.Response) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	overflow := false
	select {
	case s.send <- resp:
	default:
		overflow = true
	}
	s.mu.Unlock()
	if overflow {
		s.teardown()
	}
}

func (s *session) handle(r *http.Request, req wire.Request) {
	ctx := r.Context()
	switch req.Op {
	case wire.OpRead:
		v, err := s.hub.store.Read(ctx, req.Path)
		if errors.Is(err, common.ErrNotFound) {
			s.enqueue(wire.Response{ID: req.ID, NotFound: true})
			return
		}
		if err != nil {
			s.fail(req.ID, err)
			return
		}
		raw, err := json.Marshal(v)
		if err != nil {
			s.fail(req.ID, err)
			return
		}
		s.enqueue(wire.Response{ID: req.ID, Value: raw})

	case wire.OpWrite:
		var v any
		if err := json.Unmarshal(req.Value, &v); err != nil {
			s.fail(req.ID, err)
			return
		}
		if err := s.hub.store.Write(ctx, req.Path, v); err != nil {
			s.fail(req.ID, err)
			return
		}
		s.enqueue(wire.Response{ID: req.ID})

	case wire.OpUpdate:
		var partial map[string]any
		if err := json.Unmarshal(req.Value, &partial); err != nil {
			s.fail(req.ID, err)
			return
		}
		if err := s.hub.store.Update(ctx, req.Path, partial); err != nil {
			s.fail(req.ID, err)
			return
		}
		s.enqueue(wire.Response{ID: req.ID})

	case wire.OpQuery:
		order := store.Order{ChildField: req.OrderChild, Desc: req.Desc}
		children, err := s.hub.store.QueryPage(ctx, req.Path, order, req.StartAfter, req.Limit)
		if err != nil {
			s.fail(req.ID, err)
			return
		}
		out := make([]wire.Child, 0, len(children))
		for _, c := range children {
			raw, err := json.Marshal(c.Value)
			if err != nil {
				s.fail(req.ID, err)
				return
			}
			out = append(out, wire.Child{Key: c.Key, Value: raw})
		}
		s.enqueue(wire.Response{ID: req.ID, Children: out})

	case wire.OpListenValue, wire.OpListenChild:
		var sub *store.Subscription
		var err error
		if req.Op == wire.OpListenValue {
			sub, err = s.hub.store.ObserveValue(req.Path)
		} else {
			sub, err = s.hub.store.ObserveChildAdded(req.Path, store.Order{ChildField: req.OrderChild, Desc: req.Desc})
		}
		if err != nil {
			s.fail(req.ID, err)
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			sub.Cancel()
			return
		}
		s.watches[req.Watch] = sub
		s.mu.Unlock()
		// Ack before the pump starts so the first event follows the ack.
		s.enqueue(wire.Response{ID: req.ID})
		go s.pumpEvents(req.Watch, sub)

	case wire.OpUnlisten:
		s.mu.Lock()
		sub := s.watches[req.Watch]
		delete(s.watches, req.Watch)
		s.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}

	default:
		s.fail(req.ID, errors.New("unknown op: "+req.Op))
	}
}

func (s *session) fail(id int64, err error) {
	s.enqueue(wire.Response{ID: id, Error: err.Error()})
}

func (s *session) pumpEvents(watchID int64, sub *store.Subscription) {
	for ev := range sub.C {
		raw, err := json.Marshal(ev.Value)
		if err != nil {
			continue
		}
		s.enqueue(wire.Response{
			Watch: watchID,
			Event: &wire.Event{Path: ev.Path, Key: ev.Key, Value: raw},
		})
	}
}
