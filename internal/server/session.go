package server

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/catalog"
	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/config"
	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/network"
	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/inventory"
	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/models"
)

var (
	ErrSessionFull      = errors.New("session is full")
	ErrAlreadyConnected = errors.New("player already connected")
)

// Session tracks connected players and owns their inventories.
//
// An inventory is not safe for concurrent use, so it is only ever touched by
// the read loop of the connection that currently holds it. A player can hold
// at most one connection; inventories outlive connections so a player gets
// the same inventory back on reconnect.
type Session struct {
	ID        string
	CreatedAt time.Time

	players     map[string]*models.Player       // playerID -> Player
	connections map[string]*Connection          // playerID -> Connection
	inventories map[string]*inventory.Inventory // playerID -> Inventory
	mu          sync.RWMutex

	catalog *catalog.Catalog
	config  *config.Config
}

// NewSession creates a new session seeding inventories from cat
func NewSession(cfg *config.Config, cat *catalog.Catalog) (*Session, error) {
	if kit := cfg.Session.StarterKit; kit != "" {
		if _, ok := cat.Kit(kit); !ok {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownKit, kit)
		}
	}

	session := &Session{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		players:     make(map[string]*models.Player),
		connections: make(map[string]*Connection),
		inventories: make(map[string]*inventory.Inventory),
		catalog:     cat,
		config:      cfg,
	}

	log.Printf("Session %s created with starter kit %q", session.ID, cfg.Session.StarterKit)
	return session, nil
}

// AddPlayer attaches conn to the player and hands it the player's inventory,
// creating one from the starter kit on first join.
func (s *Session) AddPlayer(player *models.Player, conn *Connection) (*inventory.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, connected := s.connections[player.ID]; connected {
		return nil, ErrAlreadyConnected
	}
	if len(s.players) >= s.config.Session.MaxPlayers {
		return nil, ErrSessionFull
	}

	inv, ok := s.inventories[player.ID]
	if !ok {
		var err error
		inv, err = s.catalog.NewInventory(s.config.Session.StarterKit)
		if err != nil {
			return nil, fmt.Errorf("failed to create inventory: %w", err)
		}
		s.inventories[player.ID] = inv
	}

	player.Kit = s.config.Session.StarterKit
	player.Connected = true
	player.ConnectedAt = time.Now()
	player.LastSeen = player.ConnectedAt
	player.SessionID = s.ID
	s.players[player.ID] = player
	s.connections[player.ID] = conn

	log.Printf("Player %s (%s) joined session %s", player.Username, player.ID, s.ID)
	return inv, nil
}

// RemovePlayer detaches conn from the player. It reports false when conn is
// not the player's current connection.
func (s *Session) RemovePlayer(playerID string, conn *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.connections[playerID]; !ok || current != conn {
		return false
	}
	if player, exists := s.players[playerID]; exists {
		player.Connected = false
		log.Printf("Player %s (%s) left session %s", player.Username, playerID, s.ID)
	}
	delete(s.players, playerID)
	delete(s.connections, playerID)
	return true
}

// Touch records activity for a joined player
func (s *Session) Touch(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if player, exists := s.players[playerID]; exists {
		player.LastSeen = time.Now()
	}
}

// GetPlayer returns a copy of the player with the given ID
func (s *Session) GetPlayer(playerID string) (models.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	player, exists := s.players[playerID]
	if !exists {
		return models.Player{}, false
	}
	return *player, true
}

// GetPlayers returns copies of all players in the session
func (s *Session) GetPlayers() []models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]models.Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, *player)
	}
	return players
}

// BroadcastMessage sends a message to all connected players
func (s *Session) BroadcastMessage(msg *network.ServerMessage) {
	s.BroadcastExcept(nil, msg)
}

// BroadcastExcept sends a message to all players except the specified connection
func (s *Session) BroadcastExcept(exclude *Connection, msg *network.ServerMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.connections {
		if conn != exclude {
			conn.SendMessage(msg)
		}
	}
}

// GetStatus returns the current session status
func (s *Session) GetStatus() network.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := "waiting"
	if len(s.players) > 0 {
		state = "running"
	}
	return network.SessionStatus{
		State:       state,
		PlayerCount: len(s.players),
		MaxPlayers:  s.config.Session.MaxPlayers,
		Uptime:      int64(time.Since(s.CreatedAt).Seconds()),
	}
}

// batchForwarder mirrors every change batch of an inventory to a client.
type batchForwarder struct {
	conn *Connection
}

func (f *batchForwarder) OnInventoryChanged(change inventory.Change) {
	// the payload copies the batch, which is reclaimed once we return
	f.conn.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypeInventoryChanged,
		Payload: network.ChangedFromBatch(change),
	})
}
