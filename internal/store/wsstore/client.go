// Package wsstore implements the store.Store contract over a websocket
// connection to a server speaking the wire protocol (see wsserver for the
// other end). Requests are correlated by id; listener events stream in by
// watch id until unlistened. Generated keys are minted locally, so key
// generation never blocks on the network.
package wsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/logging"
	"github.com/lamberthyl/chatsync/internal/store"
	"github.com/lamberthyl/chatsync/internal/store/wire"
)

// ErrClosed is returned for operations after the connection is gone.
var ErrClosed = errors.New("wsstore: connection closed")

const watchBuffer = 64

type watch struct {
	ch chan store.Event
}

// Client is a remote store handle. Safe for concurrent use; the underlying
// connection is process-wide and long-lived, but every Subscription handed
// out is exclusively owned by its creator.
type Client struct {
	conn *websocket.Conn
	log  logging.Logger
	keys *store.KeyGenerator

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]chan wire.Response
	watches  map[int64]*watch
	closed   bool
	closeErr error
	done     chan struct{}
}

// Dial connects to the given websocket URL (ws://host/ws) and starts the
// read loop.
func Dial(ctx context.Context, url string, log logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.Nop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsstore: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		log:     log,
		keys:    store.NewKeyGenerator(time.Now),
		pending: map[int64]chan wire.Response{},
		watches: map[int64]*watch{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears the connection down. Pending calls fail with ErrClosed and all
// subscription channels are closed.
func (c *Client) Close() error {
	c.teardown(ErrClosed)
	return nil
}

func (c *Client) teardown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	close(c.done)
	for id, w := range c.watches {
		delete(c.watches, id)
		close(w.ch)
	}
	c.mu.Unlock()
	_ = c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		var resp wire.Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.teardown(fmt.Errorf("wsstore: read: %w", err))
			return
		}
		if resp.Watch != 0 && resp.Event != nil {
			c.dispatchEvent(resp.Watch, *resp.Event)
			continue
		}
		c.mu.Lock()
		ch := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ch != nil {
			ch <- resp
		}
	}
}

func (c *Client) dispatchEvent(watchID int64, ev wire.Event) {
	c.mu.Lock()
	w := c.watches[watchID]
	c.mu.Unlock()
	if w == nil {
		// Event raced an unlisten; stale emissions are no-ops.
		return
	}
	select {
	case w.ch <- store.Event{Path: ev.Path, Key: ev.Key, Value: decodeRaw(ev.Value)}:
	default:
		c.log.Warn(context.Background(), "listener consumer behind, dropping event", "path", ev.Path)
	}
}

func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func (c *Client) send(req wire.Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(req)
}

func (c *Client) call(ctx context.Context, req wire.Request) (wire.Response, error) {
	ch := make(chan wire.Response, 1)
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return wire.Response{}, err
	}
	c.nextID++
	req.ID = c.nextID
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return wire.Response{}, fmt.Errorf("wsstore: %s: %w", req.Op, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, fmt.Errorf("wsstore: %s: %s", req.Op, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return wire.Response{}, ctx.Err()
	case <-c.done:
		return wire.Response{}, c.closeErr
	}
}

func (c *Client) Read(ctx context.Context, path string) (any, error) {
	resp, err := c.call(ctx, wire.Request{Op: wire.OpRead, Path: path})
	if err != nil {
		return nil, err
	}
	if resp.NotFound {
		return nil, common.ErrNotFound
	}
	return decodeRaw(resp.Value), nil
}

func (c *Client) Write(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("wsstore: encode write: %w", err)
	}
	_, err = c.call(ctx, wire.Request{Op: wire.OpWrite, Path: path, Value: raw})
	return err
}

func (c *Client) Update(ctx context.Context, path string, partial map[string]any) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("wsstore: encode update: %w", err)
	}
	_, err = c.call(ctx, wire.Request{Op: wire.OpUpdate, Path: path, Value: raw})
	return err
}

func (c *Client) QueryPage(ctx context.Context, path string, orderBy store.Order, startAfter string, limit int) ([]store.Child, error) {
	resp, err := c.call(ctx, wire.Request{
		Op:         wire.OpQuery,
		Path:       path,
		OrderChild: orderBy.ChildField,
		Desc:       orderBy.Desc,
		StartAfter: startAfter,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]store.Child, 0, len(resp.Children))
	for _, ch := range resp.Children {
		out = append(out, store.Child{Key: ch.Key, Value: decodeRaw(ch.Value)})
	}
	return out, nil
}

func (c *Client) ObserveValue(path string) (*store.Subscription, error) {
	return c.listen(wire.OpListenValue, path, store.Order{})
}

func (c *Client) ObserveChildAdded(path string, orderBy store.Order) (*store.Subscription, error) {
	return c.listen(wire.OpListenChild, path, orderBy)
}

func (c *Client) listen(op, path string, orderBy store.Order) (*store.Subscription, error) {
	w := &watch{ch: make(chan store.Event, watchBuffer)}

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	watchID := c.nextID
	// Register before the listen request goes out so the initial emission
	// cannot be missed.
	c.watches[watchID] = w
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := c.call(ctx, wire.Request{
		Op:         op,
		Path:       path,
		OrderChild: orderBy.ChildField,
		Desc:       orderBy.Desc,
		Watch:      watchID,
	})
	if err != nil {
		c.dropWatch(watchID)
		return nil, err
	}

	return store.NewSubscription(w.ch, func() {
		// Best-effort unlisten; the server also reaps watches when the
		// connection goes away.
		_ = c.send(wire.Request{Op: wire.OpUnlisten, Watch: watchID})
		c.dropWatch(watchID)
	}), nil
}

func (c *Client) dropWatch(watchID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w := c.watches[watchID]; w != nil {
		delete(c.watches, watchID)
		close(w.ch)
	}
}

func (c *Client) GenerateKey(string) (string, error) {
	return c.keys.Next(), nil
}

var _ store.Store = (*Client)(nil)
