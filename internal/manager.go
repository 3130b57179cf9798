package internal

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultRoomID 預設房間
//
// 本設計使用一個眾所周知的房間承載整個行程的所有連接，
// 結構上仍支援多房間（連接時以 room 查詢參數指定）。
const DefaultRoomID = "lobby"

// Manager 房間管理器
//
// 擁有兩份映射：roomID -> Room 與 playerID -> roomID。
// 所有房間都存活至行程結束：預設房間在啟動時創建且永不銷毀，
// 具名房間在首次連接時按需創建。沒有過期清理——空房間保留狀態，
// 讓斷線重連的玩家透過 connected 訊框直接追上進度。
type Manager struct {
	rooms      map[string]*Room  // roomID -> Room
	playerRoom map[string]string // playerID -> roomID
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewManager 創建房間管理器
//
// 預設房間在此創建，行程存活期間一直存在（成員數歸零也不銷毀）。
func NewManager(logger *slog.Logger) *Manager {
	m := &Manager{
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]string),
		logger:     logger,
	}

	m.rooms[DefaultRoomID] = NewRoom(DefaultRoomID)
	logger.Info("預設房間已創建", "room_id", DefaultRoomID)

	return m
}

// GetRoom 獲取房間
func (m *Manager) GetRoom(roomID string) (*Room, error) {
	m.mu.RLock()
	room, exists := m.rooms[roomID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("房間不存在: %s", roomID)
	}

	return room, nil
}

// GetOrCreateRoom 獲取房間，不存在則創建
func (m *Manager) GetOrCreateRoom(roomID string) *Room {
	m.mu.RLock()
	room, exists := m.rooms[roomID]
	m.mu.RUnlock()

	if exists {
		return room
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 再檢查一次，可能有並發創建
	if room, exists := m.rooms[roomID]; exists {
		return room
	}

	room = NewRoom(roomID)
	m.rooms[roomID] = room
	m.logger.Info("房間已創建", "room_id", roomID)

	return room
}

// BindPlayer 記錄玩家所在房間
//
// 不變式：一個玩家同一時刻只屬於一個房間。
func (m *Manager) BindPlayer(playerID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerRoom[playerID] = roomID
}

// UnbindPlayer 清除玩家房間記錄（冪等）
func (m *Manager) UnbindPlayer(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playerRoom, playerID)
}

// GetPlayerRoom 獲取玩家所在房間
func (m *Manager) GetPlayerRoom(playerID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, exists := m.playerRoom[playerID]
	return roomID, exists
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalPlayers := 0
	byRoom := make(map[string]int, len(m.rooms))
	for roomID, room := range m.rooms {
		count := room.PlayerCount()
		byRoom[roomID] = count
		totalPlayers += count
	}

	return map[string]any{
		"total_rooms":   len(m.rooms),
		"total_players": totalPlayers,
		"by_room":       byRoom,
	}
}

// Stop 停止管理器
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.playerRoom = make(map[string]string)
	m.logger.Info("房間管理器已停止")
}
