// Package websocket streams state revisions and alerts to per-device
// client connections.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"fleet-service/internal/events"
	"fleet-service/internal/logging"
)

const (
	// MaxConnectionsPerDevice caps concurrent streams for one device.
	MaxConnectionsPerDevice = 10
	writeWait               = 5 * time.Second
)

// Manager tracks open connections by device id.
type Manager struct {
	connections map[string]map[*gws.Conn]bool
	mutex       sync.Mutex
	logger      *logging.Logger
	upgrader    gws.Upgrader
}

func NewManager(logger *logging.Logger) *Manager {
	return &Manager{
		connections: make(map[string]map[*gws.Conn]bool),
		logger:      logger,
		upgrader: gws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// AddConnection registers conn and sends initial as its first message.
// It reports false when the device is at its connection limit.
func (m *Manager) AddConnection(deviceID string, conn *gws.Conn, initial []byte) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.connections[deviceID]; !exists {
		m.connections[deviceID] = make(map[*gws.Conn]bool)
	}
	if len(m.connections[deviceID]) >= MaxConnectionsPerDevice {
		m.logger.Warnf("Max connections reached for device %s", deviceID)
		return false
	}
	if initial != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(gws.TextMessage, initial); err != nil {
			m.logger.Errorf("Failed to send snapshot to device %s stream: %v", deviceID, err)
			return false
		}
	}
	m.connections[deviceID][conn] = true
	m.logger.Infof("Added WebSocket connection for device %s (total: %d)", deviceID, len(m.connections[deviceID]))
	return true
}

func (m *Manager) RemoveConnection(deviceID string, conn *gws.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if conns, exists := m.connections[deviceID]; exists {
		if !conns[conn] {
			return
		}
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.connections, deviceID)
		}
		m.logger.Infof("Removed WebSocket connection for device %s (remaining: %d)", deviceID, len(conns))
	}
}

// Count returns the open connections for a device.
func (m *Manager) Count(deviceID string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.connections[deviceID])
}

// SendToDevice writes message to every connection of the device. Failed
// connections are dropped.
func (m *Manager) SendToDevice(deviceID string, message []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if conns, exists := m.connections[deviceID]; exists {
		for conn := range conns {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(gws.TextMessage, message); err != nil {
				m.logger.Errorf("Failed to send WebSocket message to device %s: %v", deviceID, err)
				delete(conns, conn)
				_ = conn.Close()
			}
		}
		if len(conns) == 0 {
			delete(m.connections, deviceID)
		}
	}
}

// Publish implements events.Sink.
func (m *Manager) Publish(_ context.Context, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Kind, err)
	}
	m.SendToDevice(e.DeviceID, body)
	return nil
}

// Serve upgrades the request and holds the stream open until the client
// goes away. initial is sent before any event.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, deviceID string, initial any) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	defer conn.Close()

	snapshot, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if !m.AddConnection(deviceID, conn, snapshot) {
		_ = conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.ClosePolicyViolation, "too many connections"))
		return nil
	}
	defer m.RemoveConnection(deviceID, conn)

	// Inbound frames are ignored; reading surfaces the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
