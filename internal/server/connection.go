package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/network"
	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/inventory"
	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/inventory/query"
	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// errCommand is an error that is reported to the client with a code.
type errCommand struct {
	code    string
	message string
}

func (e *errCommand) Error() string { return e.code + ": " + e.message }

func commandError(code, format string, args ...any) error {
	return &errCommand{code: code, message: fmt.Sprintf(format, args...)}
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ws     *websocket.Conn
	server *Server

	// Player information (set after authentication)
	player        *models.Player
	authenticated bool

	// inventory is set while the player is joined. Only readPump touches it.
	inventory *inventory.Inventory
	forwarder *batchForwarder

	limiter *rate.Limiter

	// Buffered channel for outbound messages
	send      chan []byte
	sendMu    sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewConnection creates a new connection
func NewConnection(ws *websocket.Conn, server *Server) *Connection {
	limits := server.config.Limits
	return &Connection{
		ws:      ws,
		server:  server,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(rate.Limit(limits.CommandsPerSecond), limits.CommandBurst),
	}
}

// Handle manages the connection lifecycle
func (c *Connection) Handle() {
	c.ws.SetReadLimit(c.server.config.Limits.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump()
	c.readPump() // Blocking
}

// readPump pumps messages from the WebSocket connection to the server
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.SendError(network.ErrCodeRateLimited, "Too many commands")
			continue
		}

		var clientMsg network.ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			log.Printf("Failed to parse client message: %v", err)
			c.SendError(network.ErrCodeInvalidMessage, "Failed to parse message")
			continue
		}

		// Player fields are shared with the session, which owns the writes
		if c.player != nil {
			c.server.session.Touch(c.player.ID)
		}
		c.handleMessage(&clientMsg)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.server.ctx.Done():
			// Server shutting down
			return
		}
	}
}

// handleMessage routes messages to appropriate handlers
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	var err error
	switch msg.Type {
	case network.MsgTypeJoin:
		err = c.handleJoin()
	case network.MsgTypeLeave:
		c.handleLeave()
	case network.MsgTypePing:
		c.handlePing()
	case network.MsgTypeInventoryState,
		network.MsgTypeInventoryAdd,
		network.MsgTypeInventoryRemove,
		network.MsgTypeInventorySwap,
		network.MsgTypeInventoryMerge,
		network.MsgTypeInventoryMove,
		network.MsgTypeInventoryAddSlot,
		network.MsgTypeInventoryRemoveSlot,
		network.MsgTypeInventoryClear,
		network.MsgTypeInventoryCanAdd:
		err = c.handleInventory(msg)
	default:
		log.Printf("Unknown message type: %s", msg.Type)
		err = commandError(network.ErrCodeUnknownType, "Unknown message type %q", msg.Type)
	}

	if err == nil {
		return
	}
	var cmdErr *errCommand
	if errors.As(err, &cmdErr) {
		c.SendError(cmdErr.code, cmdErr.message)
		return
	}
	log.Printf("Command %s failed: %v", msg.Type, err)
	c.SendError("internal_error", "Command failed")
}

// handleJoin adds the player to the session and starts forwarding changes
func (c *Connection) handleJoin() error {
	if !c.authenticated || c.player == nil {
		return commandError("not_authenticated", "Connection not authenticated")
	}
	if c.inventory != nil {
		return commandError("already_joined", "Already joined")
	}

	session := c.server.session
	inv, err := session.AddPlayer(c.player, c)
	switch {
	case errors.Is(err, ErrAlreadyConnected):
		return commandError("already_connected", "Player is connected elsewhere")
	case errors.Is(err, ErrSessionFull):
		return commandError("session_full", "Session is full")
	case err != nil:
		return fmt.Errorf("join: %w", err)
	}

	c.inventory = inv
	c.forwarder = &batchForwarder{conn: c}
	// a batch left from a previous connection was already mirrored or is
	// covered by the state in the welcome message
	inv.ClearRecordedChanges()
	inv.Register(c.forwarder)

	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeWelcome,
		Payload: network.WelcomePayload{
			PlayerID:      c.player.ID,
			Username:      c.player.Username,
			SessionID:     session.ID,
			SessionStatus: session.GetStatus(),
			Items:         c.server.catalog.Registry().Export(),
			Inventory:     network.StateOf(inv),
		},
	})

	session.BroadcastExcept(c, &network.ServerMessage{
		Type: network.MsgTypePlayerJoined,
		Payload: network.PlayerJoinedPayload{
			PlayerID: c.player.ID,
			Username: c.player.Username,
		},
	})
	return nil
}

// handleLeave removes the player from the session
func (c *Connection) handleLeave() {
	if c.player == nil || c.inventory == nil {
		return
	}
	c.inventory.Unregister(c.forwarder)
	c.inventory, c.forwarder = nil, nil

	if !c.server.session.RemovePlayer(c.player.ID, c) {
		return
	}
	c.server.session.BroadcastMessage(&network.ServerMessage{
		Type: network.MsgTypePlayerLeft,
		Payload: network.PlayerLeftPayload{
			PlayerID: c.player.ID,
			Username: c.player.Username,
		},
	})
}

// handlePing handles ping requests
func (c *Connection) handlePing() {
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypePong,
		Payload: map[string]interface{}{"timestamp": time.Now().Unix()},
	})
}

// handleInventory applies an inventory command. Changes reach the client
// through the forwarder; commands with a return value also get a result.
func (c *Connection) handleInventory(msg *network.ClientMessage) error {
	inv := c.inventory
	if inv == nil {
		return commandError("not_joined", "Join the session first")
	}

	switch msg.Type {
	case network.MsgTypeInventoryState:
		c.SendMessage(&network.ServerMessage{
			Type:    network.MsgTypeInventoryState,
			Payload: network.StateOf(inv),
		})

	case network.MsgTypeInventoryAdd, network.MsgTypeInventoryRemove, network.MsgTypeInventoryCanAdd:
		var p network.ItemQuantityPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		item, err := c.lookupItem(p)
		if err != nil {
			return err
		}
		var remaining int
		switch msg.Type {
		case network.MsgTypeInventoryCanAdd:
			remaining = query.RemainingAfterAdd(inv, item, p.Quantity)
		case network.MsgTypeInventoryAdd:
			if err := c.requireGrant(); err != nil {
				return err
			}
			remaining = inv.Add(item, p.Quantity)
		default:
			if err := c.requireGrant(); err != nil {
				return err
			}
			remaining = inv.Remove(item, p.Quantity)
		}
		c.sendResult(msg.Type, remaining == 0, remaining)

	case network.MsgTypeInventorySwap, network.MsgTypeInventoryMerge, network.MsgTypeInventoryMove:
		var p network.SlotPairPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if err := validSlot(inv, p.Index1); err != nil {
			return err
		}
		if err := validSlot(inv, p.Index2); err != nil {
			return err
		}
		switch msg.Type {
		case network.MsgTypeInventorySwap:
			inv.Swap(p.Index1, p.Index2)
		case network.MsgTypeInventoryMove:
			inv.Move(p.Index1, p.Index2)
		default:
			left := inv.Merge(p.Index1, p.Index2)
			c.sendResult(msg.Type, left >= 0, left)
		}

	case network.MsgTypeInventoryAddSlot, network.MsgTypeInventoryRemoveSlot:
		if err := c.requireGrant(); err != nil {
			return err
		}
		var p network.SlotCountPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if p.Count <= 0 {
			return commandError(network.ErrCodeInvalidQuantity, "Count must be positive")
		}
		if msg.Type == network.MsgTypeInventoryAddSlot {
			if limit := c.server.config.Limits.MaxSlots; p.Count > limit-inv.SlotCount() {
				return commandError(network.ErrCodeInvalidQuantity, "Inventory cannot exceed %d slots", limit)
			}
			inv.AddSlot(p.Count)
		} else {
			inv.RemoveSlot(p.Count)
		}

	case network.MsgTypeInventoryClear:
		if err := c.requireGrant(); err != nil {
			return err
		}
		inv.Clear()
	}
	return nil
}

func (c *Connection) requireGrant() error {
	if !c.player.Can(models.PermInventoryGrant) {
		return commandError("forbidden", "Missing inventory grant permission")
	}
	return nil
}

func (c *Connection) lookupItem(p network.ItemQuantityPayload) (inventory.Item, error) {
	if p.Quantity <= 0 {
		return inventory.Item{}, commandError(network.ErrCodeInvalidQuantity, "Quantity must be positive")
	}
	item, ok := c.server.catalog.Registry().Lookup(inventory.ItemID(p.ItemID))
	if !ok {
		return inventory.Item{}, commandError(network.ErrCodeUnknownItem, "Unknown item %q", p.ItemID)
	}
	return item, nil
}

// validSlot keeps client indices away from the inventory's range panics.
func validSlot(inv *inventory.Inventory, index int) error {
	if index < 0 || index >= inv.SlotCount() {
		return commandError(network.ErrCodeInvalidSlot, "Slot %d out of range [0,%d)", index, inv.SlotCount())
	}
	return nil
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return commandError(network.ErrCodeInvalidPayload, "Missing payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return commandError(network.ErrCodeInvalidPayload, "Invalid payload: %v", err)
	}
	return nil
}

func (c *Connection) sendResult(op string, ok bool, remaining int) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeInventoryResult,
		Payload: network.InventoryResultPayload{
			Op:        op,
			OK:        ok,
			Remaining: remaining,
		},
	})
}

// SendMessage queues a message for the client. Messages sent after Close or
// while the buffer is full are dropped.
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Send buffer full, dropping %s message", msg.Type)
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code, message string) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeError,
		Payload: network.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Close leaves the session and shuts the connection down. It is safe to call
// more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if c.authenticated && c.player != nil {
			c.handleLeave()
		}

		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()

		c.ws.Close()
	})
}
