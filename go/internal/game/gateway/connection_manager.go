package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSlowConsumer     = errors.New("connection send buffer full")
	errBroadcastFull    = errors.New("broadcast channel full")
)

// SnapshotSource returns the latest snapshot of a room.
type SnapshotSource interface {
	Snapshot(ctx context.Context, roomID uuid.UUID) (*game.Snapshot, error)
}

// ConnectionManager fans committed snapshots out to the WebSocket clients of
// each room. Every connection gets its own view and never sees a version
// older than one it was already sent.
type ConnectionManager struct {
	rooms map[uuid.UUID]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	source   SnapshotSource

	broadcastCh chan *game.Snapshot
}

// Connection is one client socket subscribed to a room.
type Connection struct {
	ID       string
	Occupant models.OccupantID // 0 for spectators
	RoomID   uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	mu          sync.Mutex
	lastVersion uint64
	closed      bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration              `yaml:"write_timeout"`
	ReadTimeout     time.Duration              `yaml:"read_timeout"`
	PingInterval    time.Duration              `yaml:"ping_interval"`
	MaxMessageSize  int64                      `yaml:"max_message_size"`
	ReadBufferSize  int                        `yaml:"read_buffer_size"`
	WriteBufferSize int                        `yaml:"write_buffer_size"`
	SendBuffer      int                        `yaml:"send_buffer"`
	CheckOrigin     func(r *http.Request) bool `yaml:"-"`
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a manager. source may be nil, in which case
// clients only get snapshots committed after they connect.
func NewConnectionManager(config ConnectionConfig, source SnapshotSource) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 64
	}
	return &ConnectionManager{
		rooms: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		source:      source,
		broadcastCh: make(chan *game.Snapshot, 1000),
	}
}

// AttachSource sets the snapshot source once the orchestrator exists.
func (cm *ConnectionManager) AttachSource(source SnapshotSource) {
	cm.source = source
}

// Start delivers queued snapshots until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case snap := <-cm.broadcastCh:
			cm.handleBroadcast(snap)
		}
	}
}

// OnSnapshot queues snap for the room's connections.
func (cm *ConnectionManager) OnSnapshot(_ context.Context, roomID uuid.UUID, version uint64, snap *game.Snapshot) error {
	select {
	case cm.broadcastCh <- snap:
		return nil
	default:
		log.Warn().Str("room_id", roomID.String()).Uint64("version", version).Msg("broadcast channel full, dropping snapshot")
		return fmt.Errorf("%w: dropped version %d", errBroadcastFull, version)
	}
}

// UpgradeConnection upgrades the request and subscribes the socket to roomID.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, occupant models.OccupantID, roomID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := cm.newConnection(occupant, roomID, conn)
	cm.registerConnection(c)
	cm.sendLatest(r.Context(), c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Int64("occupant_id", int64(occupant)).
		Str("room_id", roomID.String()).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) newConnection(occupant models.OccupantID, roomID uuid.UUID, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		Occupant:    occupant,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
}

func (cm *ConnectionManager) registerConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.rooms[c.RoomID] == nil {
		cm.rooms[c.RoomID] = make(map[*Connection]bool)
	}
	cm.rooms[c.RoomID][c] = true

	log.Debug().
		Str("connection_id", c.ID).
		Str("room_id", c.RoomID.String()).
		Int("total_connections", len(cm.rooms[c.RoomID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.rooms[c.RoomID]
	if !exists || !connections[c] {
		return
	}
	delete(connections, c)
	if len(connections) == 0 {
		delete(cm.rooms, c.RoomID)
	}
	c.close()

	log.Info().
		Str("connection_id", c.ID).
		Int64("occupant_id", int64(c.Occupant)).
		Str("room_id", c.RoomID.String()).
		Msg("connection unregistered")
}

// sendLatest pushes the current snapshot so a new or resyncing client does
// not wait for the next commit.
func (cm *ConnectionManager) sendLatest(ctx context.Context, c *Connection) {
	if cm.source == nil {
		return
	}
	snap, err := cm.source.Snapshot(ctx, c.RoomID)
	if errors.Is(err, models.ErrGameNotRunning) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("room_id", c.RoomID.String()).Msg("failed to load snapshot for connection")
		c.sendError(err)
		return
	}
	if err := c.deliver(snap); err != nil {
		cm.drop(c, err)
	}
}

func (cm *ConnectionManager) handleBroadcast(snap *game.Snapshot) {
	cm.mu.RLock()
	connections, exists := cm.rooms[snap.RoomID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for c := range connections {
		targets = append(targets, c)
	}
	cm.mu.RUnlock()

	for _, c := range targets {
		if err := c.deliver(snap); err != nil {
			cm.drop(c, err)
		}
	}

	log.Debug().
		Str("room_id", snap.RoomID.String()).
		Uint64("version", snap.Version).
		Int("connections", len(targets)).
		Msg("snapshot broadcasted")
}

func (cm *ConnectionManager) drop(c *Connection, cause error) {
	if errors.Is(cause, errConnectionClosed) {
		return
	}
	log.Warn().
		Err(cause).
		Str("connection_id", c.ID).
		Int64("occupant_id", int64(c.Occupant)).
		Msg("closing connection")
	cm.unregisterConnection(c)
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// ConnectionStats summarises active connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{ActiveRooms: len(cm.rooms), RoomConnections: make(map[string]int, len(cm.rooms))}
	for roomID, connections := range cm.rooms {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID.String()] = len(connections)
	}
	return stats
}

// deliver queues the occupant's view of snap unless an equal or newer
// version was already queued.
func (c *Connection) deliver(snap *game.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnectionClosed
	}
	if snap.Version <= c.lastVersion {
		return nil
	}
	data, err := json.Marshal(newSnapshotEvent(snap, snap.ViewForOccupant(c.Occupant)))
	if err != nil {
		return fmt.Errorf("marshal snapshot event: %w", err)
	}
	select {
	case c.Send <- data:
		c.lastVersion = snap.Version
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *Connection) sendError(cause error) {
	data, err := json.Marshal(&RoomEvent{Type: EventTypeError, RoomID: c.RoomID.String(), Error: cause.Error()})
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage serves "resync", which resends the latest snapshot
// regardless of what the connection was already sent.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		return
	}
	switch msg.Type {
	case "resync":
		c.mu.Lock()
		c.lastVersion = 0
		c.mu.Unlock()
		c.Manager.sendLatest(context.Background(), c)
	default:
		log.Debug().Str("connection_id", c.ID).Str("type", msg.Type).Msg("unknown client message")
	}
}
