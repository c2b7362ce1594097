package models

import "time"

// PermInventoryGrant, carried in the JWT permissions claim, allows creating
// and destroying items and resizing the inventory. Without it a player can
// only rearrange what they hold.
const PermInventoryGrant int64 = 1 << 0

// Player represents a connected player
type Player struct {
	// From JWT claims
	ID          string `json:"id"`          // Converted from int64 user_id
	Username    string `json:"username"`    // JWT claim
	Email       string `json:"email"`       // JWT claim
	Permissions int64  `json:"permissions"` // JWT claim: bitwise permission flags
	Activated   int64  `json:"activated"`   // JWT claim: activation timestamp or ban status
	AuthMethod  string `json:"auth_method"` // JWT claim: "password" or "oauth"

	// Connection state
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`

	// Session state
	SessionID string `json:"session_id"`
	// Kit is the starter kit the player's inventory was seeded from.
	Kit string `json:"kit,omitempty"`
}

// IsActive checks if the player account is activated and not banned
func (p *Player) IsActive() bool {
	// activated > 0 means activated
	// activated == 0 means not activated
	// activated == -1 means banned
	return p.Activated > 0
}

// IsBanned checks if the player is banned
func (p *Player) IsBanned() bool {
	return p.Activated == -1
}

// Can reports whether the player holds every bit of perm.
func (p *Player) Can(perm int64) bool {
	return p.Permissions&perm == perm
}
