// Package push implements C7: long-lived bidirectional client connections
// grouped by (tenant, queue) and (tenant, user). Directly adapted from the
// teacher's Hub/Client (hub.go, handlers.go's handleWebSocket) —
// map[int]map[*Client]bool keyed by a single board id becomes
// map[string]map[*Client]bool keyed by the §4.7 group name; the teacher's
// register/unregister channels are replaced by synchronous methods guarded
// by a mutex, and a tenant-scoping check the teacher's single-tenant board
// app never needed is added.
package push

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Upgrader matches the teacher's CheckOrigin: true default; a real
// deployment narrows this, left permissive here per spec §1 (auth/
// authorization policy is an external collaborator).
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServerMessage is every outbound frame C7 can emit, per spec §4.7.
type ServerMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

const (
	MsgJoinedQueue      = "JoinedQueue"
	MsgLeftQueue        = "LeftQueue"
	MsgSubscribedUser   = "SubscribedUser"
	MsgUnsubscribedUser = "UnsubscribedUser"
	MsgQueueUpdated     = "QueueUpdated"
	MsgUserUpdated      = "UserUpdated"
	MsgPositionUpdated  = "PositionUpdated"
	MsgUserReleased     = "UserReleased"
	MsgQueueStatistics  = "QueueStatistics"
	MsgError            = "Error"
)

// ErrInvalidTenantContext is the §4.7 rejection message sent to a client
// attempting to subscribe without a resolved tenant.
const ErrInvalidTenantContext = "Invalid tenant context"

// QueueGroup and UserGroup compute the group names from spec §4.7.
// Tenant scoping is always taken from the connection's authenticated
// TenantID, never from client-supplied input.
func QueueGroup(tenantID, queueID string) string { return "queue_" + tenantID + "_" + queueID }
func UserGroup(tenantID, userID string) string    { return "user_" + tenantID + "_" + userID }

// Client is one live connection, scoped to the tenant it authenticated as.
type Client struct {
	conn     *websocket.Conn
	tenantID string
	hub      *Hub

	mu     sync.Mutex
	groups map[string]bool
}

func newClient(conn *websocket.Conn, tenantID string, hub *Hub) *Client {
	return &Client{conn: conn, tenantID: tenantID, hub: hub, groups: make(map[string]bool)}
}

func (c *Client) send(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// clientRequest mirrors the four §4.7 client operations as a single typed
// envelope, the way the teacher's WSMessage is the single inbound/outbound
// envelope shape.
type clientRequest struct {
	Op      string `json:"op"`
	QueueID string `json:"queue_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

const (
	opJoinQueueGroup           = "JoinQueueGroup"
	opLeaveQueueGroup          = "LeaveQueueGroup"
	opSubscribeToUserUpdates   = "SubscribeToUserUpdates"
	opUnsubscribeFromUserUpdates = "UnsubscribeFromUserUpdates"
)

// Hub is the group-keyed registry, generalizing the teacher's
// Hub.clients map[int]map[*Client]bool to arbitrary string group keys.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[*Client]bool)}
}

// Register creates a Client bound to tenantID over conn. tenantID must
// already be resolved (by the TenantResolver given to ServeHTTP) before
// this is called; an empty tenantID is rejected immediately, replying Error
// and closing the connection, per spec §4.7.
func (h *Hub) Register(conn *websocket.Conn, tenantID string) *Client {
	c := newClient(conn, tenantID, h)
	if tenantID == "" {
		_ = c.send(ServerMessage{Type: MsgError, Data: ErrInvalidTenantContext})
		_ = conn.Close()
		return nil
	}
	return c
}

func (h *Hub) join(c *Client, group string) {
	h.mu.Lock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][c] = true
	h.mu.Unlock()

	c.mu.Lock()
	c.groups[group] = true
	c.mu.Unlock()
}

func (h *Hub) leave(c *Client, group string) {
	h.mu.Lock()
	if members, ok := h.groups[group]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	h.mu.Unlock()

	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
}

// Unregister removes c from every group it joined and closes its
// connection, mirroring the teacher's unregister-channel handling in
// hub.run but performed synchronously since Hub no longer serializes
// mutation through a single goroutine (every method here is already
// safe for concurrent callers via h.mu).
func (h *Hub) Unregister(c *Client) {
	c.mu.Lock()
	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	c.mu.Unlock()

	for _, g := range groups {
		h.leave(c, g)
	}
	_ = c.conn.Close()
}

// HandleClientMessage dispatches one decoded inbound frame to the matching
// §4.7 operation and sends the symmetric server acknowledgment.
func (h *Hub) HandleClientMessage(c *Client, raw []byte) error {
	var req clientRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return c.send(ServerMessage{Type: MsgError, Data: "malformed request"})
	}

	switch req.Op {
	case opJoinQueueGroup:
		h.join(c, QueueGroup(c.tenantID, req.QueueID))
		return c.send(ServerMessage{Type: MsgJoinedQueue, Data: req.QueueID})
	case opLeaveQueueGroup:
		h.leave(c, QueueGroup(c.tenantID, req.QueueID))
		return c.send(ServerMessage{Type: MsgLeftQueue, Data: req.QueueID})
	case opSubscribeToUserUpdates:
		h.join(c, UserGroup(c.tenantID, req.UserID))
		return c.send(ServerMessage{Type: MsgSubscribedUser, Data: req.UserID})
	case opUnsubscribeFromUserUpdates:
		h.leave(c, UserGroup(c.tenantID, req.UserID))
		return c.send(ServerMessage{Type: MsgUnsubscribedUser, Data: req.UserID})
	default:
		return c.send(ServerMessage{Type: MsgError, Data: "unknown operation"})
	}
}

// BroadcastToGroup sends msg to every client currently in group, in the
// caller's order — used by the bus-subscriber bridge (bridge.go) so
// messages for a single group preserve bus order, per spec §5 "Ordering
// guarantees". A failed send unregisters that client, mirroring the
// teacher's broadcastToBoard -> h.unregister <- client path.
func (h *Hub) BroadcastToGroup(group string, msg ServerMessage) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, c := range members {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.Unregister(c)
		}
	}
}

// GroupSize reports how many clients currently belong to group, for
// tests and operator inspection.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
