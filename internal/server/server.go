package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/catalog"
	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/config"
)

// Server is the inventory session server
type Server struct {
	config       *config.Config
	session      *Session
	catalog      *catalog.Catalog
	upgrader     websocket.Upgrader
	httpSrv      *http.Server
	jwtValidator *JWTValidator
	redis        *redis.Client

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex

	// Shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new server instance
func New(cfg *config.Config) (*Server, error) {
	log.Println("Initializing server...")

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	if err := redisClient.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("Connected to Redis")

	srv := &Server{
		config:      cfg,
		catalog:     cat,
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		redis:       redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"access_token"},
			CheckOrigin: func(r *http.Request) bool {
				// TODO: check origin against a configured allow list
				return true
			},
		},
	}

	// Initialize JWT validator
	jwtValidator, err := NewJWTValidator(ctx, cfg, redisClient)
	if err != nil {
		cancel()
		redisClient.Close()
		return nil, fmt.Errorf("failed to initialize JWT validator: %w", err)
	}
	srv.jwtValidator = jwtValidator

	// Initialize session
	session, err := NewSession(cfg, cat)
	if err != nil {
		cancel()
		redisClient.Close()
		return nil, err
	}
	srv.session = session

	log.Println("Server initialized successfully")
	return srv, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Session.CatalogPath == "" {
		log.Println("No catalog configured, using built-in items")
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Session.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	log.Printf("Loaded %d items from %s", len(cat.Registry().Export()), cfg.Session.CatalogPath)
	return cat, nil
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Session returns the player session
func (s *Server) Session() *Session { return s.session }

// Start begins listening for connections
func (s *Server) Start(addr string) error {
	log.Printf("Starting WebSocket server on %s", addr)

	// Create HTTP server
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("WebSocket endpoint: ws://%s/ws", addr)
	log.Printf("Health endpoint: http://%s/health", addr)

	// Start server
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	log.Println("Shutting down server...")

	// Cancel context to signal shutdown
	s.cancel()

	// Shutdown HTTP server with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}

	// Closing the socket ends each read loop, which then leaves the session
	// from its own goroutine.
	s.connMu.RLock()
	for conn := range s.connections {
		conn.ws.Close()
	}
	s.connMu.RUnlock()

	// Close Redis connection
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}

// handleWebSocket authenticates and upgrades a connection request
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log.Printf("New WebSocket connection request from %s", r.RemoteAddr)

	// Extract JWT token from header
	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		log.Printf("Missing JWT token from %s", r.RemoteAddr)
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	// Validate JWT token
	player, err := s.jwtValidator.ValidateToken(tokenString)
	if err != nil {
		log.Printf("Invalid JWT token from %s: %v", r.RemoteAddr, err)
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}

	log.Printf("Authenticated user: %s (%s) from %s", player.Username, player.ID, r.RemoteAddr)

	// Upgrade HTTP connection to WebSocket
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Create connection with authenticated player
	conn := NewConnection(ws, s)
	conn.player = player
	conn.authenticated = true

	// Register connection
	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()

	log.Printf("WebSocket connection established: %s (%s)", player.Username, r.RemoteAddr)

	// Handle connection (blocking)
	conn.Handle()

	// Unregister connection when done
	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()

	log.Printf("WebSocket connection closed: %s (%s)", player.Username, r.RemoteAddr)
}

// handleHealth reports liveness and the number of joined players
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.session.GetStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","players":%d}`, status.PlayerCount)
}
