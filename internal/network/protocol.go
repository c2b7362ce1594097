package network

import (
	"encoding/json"

	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/inventory"
)

// Message types - Client → Server
const (
	MsgTypeJoin                = "join"
	MsgTypeLeave               = "leave"
	MsgTypePing                = "ping"
	MsgTypeInventoryState      = "inventory_state"
	MsgTypeInventoryAdd        = "inventory_add"
	MsgTypeInventoryRemove     = "inventory_remove"
	MsgTypeInventorySwap       = "inventory_swap"
	MsgTypeInventoryMerge      = "inventory_merge"
	MsgTypeInventoryMove       = "inventory_move"
	MsgTypeInventoryAddSlot    = "inventory_add_slot"
	MsgTypeInventoryRemoveSlot = "inventory_remove_slot"
	MsgTypeInventoryClear      = "inventory_clear"
	MsgTypeInventoryCanAdd     = "inventory_can_add"
)

// Message types - Server → Client
const (
	MsgTypeWelcome          = "welcome"
	MsgTypePlayerJoined     = "player_joined"
	MsgTypePlayerLeft       = "player_left"
	MsgTypeSessionStatus    = "session_status"
	MsgTypeInventoryChanged = "inventory_changed"
	MsgTypeInventoryResult  = "inventory_result"
	MsgTypeError            = "error"
	MsgTypePong             = "pong"
)

// Error codes sent in ErrorPayload.Code
const (
	ErrCodeInvalidMessage  = "invalid_message"
	ErrCodeUnknownType     = "unknown_message_type"
	ErrCodeInvalidPayload  = "invalid_payload"
	ErrCodeInvalidSlot     = "invalid_slot"
	ErrCodeInvalidQuantity = "invalid_quantity"
	ErrCodeUnknownItem     = "unknown_item"
	ErrCodeRateLimited     = "rate_limited"
)

// ClientMessage represents any message from client to server
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// --- Client Message Payloads ---

// JoinPayload is sent by client to join the session
type JoinPayload struct {
	// Currently empty - join happens automatically after auth
}

// ItemQuantityPayload is used by inventory_add, inventory_remove and
// inventory_can_add.
type ItemQuantityPayload struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// SlotPairPayload is used by inventory_swap, inventory_merge and
// inventory_move.
type SlotPairPayload struct {
	Index1 int `json:"index1"`
	Index2 int `json:"index2"`
}

// SlotCountPayload is used by inventory_add_slot and inventory_remove_slot.
type SlotCountPayload struct {
	Count int `json:"count"`
}

// --- Server Message Payloads ---

// WelcomePayload is sent to client after successful connection
type WelcomePayload struct {
	PlayerID      string                `json:"player_id"`
	Username      string                `json:"username"`
	SessionID     string                `json:"session_id"`
	SessionStatus SessionStatus         `json:"session_status"`
	Items         []inventory.Item      `json:"items"`
	Inventory     InventoryStatePayload `json:"inventory"`
}

// PlayerJoinedPayload notifies clients when a player joins
type PlayerJoinedPayload struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

// PlayerLeftPayload notifies clients when a player leaves
type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

// SessionStatus represents the current session state
type SessionStatus struct {
	State       string `json:"state"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	Uptime      int64  `json:"uptime"`
}

// SlotState is the wire form of a slot. ItemID is empty for empty slots.
type SlotState struct {
	Index    int    `json:"index"`
	ItemID   string `json:"item_id,omitempty"`
	Quantity int    `json:"quantity"`
}

// InventoryStatePayload is the full inventory contents
type InventoryStatePayload struct {
	SlotCount int         `json:"slot_count"`
	Capacity  int         `json:"capacity"`
	Slots     []SlotState `json:"slots"`
}

// SlotChange is the wire form of one item change
type SlotChange struct {
	Before    SlotState `json:"before"`
	After     SlotState `json:"after"`
	Moved     bool      `json:"moved,omitempty"`
	Merged    bool      `json:"merged,omitempty"`
	Discarded bool      `json:"discarded,omitempty"`
}

// InventoryChangedPayload mirrors one change batch
type InventoryChangedPayload struct {
	SlotCountBefore int          `json:"slot_count_before"`
	SlotCountAfter  int          `json:"slot_count_after"`
	Changes         []SlotChange `json:"changes"`
}

// InventoryResultPayload answers commands that return a value
type InventoryResultPayload struct {
	Op        string `json:"op"`
	OK        bool   `json:"ok"`
	Remaining int    `json:"remaining"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
