// Package wire defines the JSON frames spoken between the websocket store
// adapter (wsstore) and the development server (wsserver). One request frame
// per operation; responses correlate by id, listener events by watch.
package wire

import "encoding/json"

// Operation names.
const (
	OpRead        = "read"
	OpWrite       = "write"
	OpUpdate      = "update"
	OpQuery       = "query"
	OpListenValue = "listen_value"
	OpListenChild = "listen_child"
	OpUnlisten    = "unlisten"
)

// Request is a client-to-server frame.
type Request struct {
	ID         int64           `json:"id"`
	Op         string          `json:"op"`
	Path       string          `json:"path,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	OrderChild string          `json:"orderChild,omitempty"`
	Desc       bool            `json:"desc,omitempty"`
	StartAfter string          `json:"startAfter,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Watch      int64           `json:"watch,omitempty"`
}

// Response is a server-to-client frame: either the reply to a request
// (ID set) or a pushed listener event (Watch set).
type Response struct {
	ID       int64           `json:"id,omitempty"`
	Error    string          `json:"error,omitempty"`
	NotFound bool            `json:"notFound,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Children []Child         `json:"children,omitempty"`
	Watch    int64           `json:"watch,omitempty"`
	Event    *Event          `json:"event,omitempty"`
}

// Child is one entry of a query result page.
type Child struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Event is one pushed listener emission.
type Event struct {
	Path  string          `json:"path"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}
