package datasource

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

const DefaultMaxConnectionsPerUser = 10

// ErrConnectionLimitReached is returned when an actor already holds the
// maximum number of live external sessions.
var ErrConnectionLimitReached = errors.New("maximum concurrent external connections reached")

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	MaxConnectionsPerUser int
}

// ConnectionManager counts live external sessions per actor and enforces a
// ceiling on them. It never holds a connection itself: every session is opened
// for one operation and closed by its disposer, which releases the slot here.
type ConnectionManager struct {
	mu                    sync.Mutex
	sessions              map[string]int // key: actor id
	maxConnectionsPerUser int
	logger                *zap.Logger
}

// NewConnectionManager creates a connection manager with the given configuration.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.MaxConnectionsPerUser <= 0 {
		cfg.MaxConnectionsPerUser = DefaultMaxConnectionsPerUser
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		sessions:              make(map[string]int),
		maxConnectionsPerUser: cfg.MaxConnectionsPerUser,
		logger:                logger,
	}
}

// Acquire reserves a session slot for the actor. The returned release func
// frees the slot and is safe to call more than once.
func (m *ConnectionManager) Acquire(actorID string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.sessions[actorID]
	if current >= m.maxConnectionsPerUser {
		m.logger.Warn("actor reached max connections limit",
			zap.String("actor_id", actorID),
			zap.Int("current", current),
			zap.Int("max", m.maxConnectionsPerUser),
		)
		return nil, ErrConnectionLimitReached
	}
	m.sessions[actorID] = current + 1

	var once sync.Once
	return func() {
		once.Do(func() { m.release(actorID) })
	}, nil
}

func (m *ConnectionManager) release(actorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[actorID] <= 1 {
		delete(m.sessions, actorID)
		return
	}
	m.sessions[actorID]--
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ConnectionStats{
		MaxConnectionsPerUser: m.maxConnectionsPerUser,
		ConnectionsByUser:     make(map[string]int, len(m.sessions)),
	}
	for actor, n := range m.sessions {
		stats.ConnectionsByUser[actor] = n
		stats.TotalConnections += n
	}
	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections      int            `json:"total_connections"`
	MaxConnectionsPerUser int            `json:"max_connections_per_user"`
	ConnectionsByUser     map[string]int `json:"connections_by_user"`
}
