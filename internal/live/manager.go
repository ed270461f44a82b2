// Package live pushes session snapshots to browser panels over WebSocket.
package live

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks open panel connections per operator and tab.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnManager creates an empty manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the connection for an operator tab.
func (m *ConnManager) GetActive(operatorID, tabID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabs, ok := m.active[operatorID]; ok {
		return tabs[tabID]
	}
	return nil
}

// Register adds a connection. A previous connection for the same tab is closed.
func (m *ConnManager) Register(operatorID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[operatorID]; !exists {
		m.active[operatorID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[operatorID][tabID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "tab replaced")
	}

	m.active[operatorID][tabID] = conn
	slog.Info("Panel connection registered", "operator_id", operatorID, "tab_id", tabID)
}

// Unregister removes a connection if it is still the current one for the tab.
func (m *ConnManager) Unregister(operatorID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tabs, ok := m.active[operatorID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(m.active, operatorID)
			}
			slog.Info("Panel connection unregistered", "operator_id", operatorID, "tab_id", tabID)
		}
	}
}

// Count returns the number of open connections.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tabs := range m.active {
		n += len(tabs)
	}
	return n
}

// CloseAll closes every connection, used on shutdown.
func (m *ConnManager) CloseAll(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for operatorID, tabs := range m.active {
		for _, conn := range tabs {
			_ = conn.Close(websocket.StatusGoingAway, reason)
		}
		delete(m.active, operatorID)
	}
}
