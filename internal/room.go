package internal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// 系統設計問題：
//   如何在多個互不信任的客戶端之間維護一份共享可變的遊戲狀態？
//
// 核心挑戰：
//   1. 並發更新：多個玩家的事件同時到達（加入、改名、狀態同步）
//   2. 成員一致性：members 必須精確反映當前連接集合
//   3. 無中心驗證：伺服器不理解遊戲規則，狀態是不透明 blob
//   4. 晚加入者追趕：新玩家連上時要拿到最後一次同步的完整狀態
//
// 設計方案：
//   ✅ RWMutex - 讀多寫少優化（統計查詢用讀鎖）
//   ✅ last-writer-wins - 共享狀態整塊替換，不做合併
//   ✅ 單調遞增序號 - 預設名稱不因玩家離開而重複
//   ✅ 冪等移除 - 重複的關閉訊號是 no-op 而非錯誤

// Player 玩家資訊
//
// ID 由伺服器在連接時生成，行程生命週期內不重用。
// Name 可由客戶端透過 set_name 更改，預設為序號佔位名稱。
type Player struct {
	ID       string    `json:"player_id"`
	Name     string    `json:"player_name"`
	JoinedAt time.Time `json:"joined_at"`
}

// Room 遊戲房間
//
// 系統設計考量：
//
//  1. 成員映射（map[playerID]*Player）：
//     不變式：members 精確等於當前分配到此房間的連接集合，
//     一個連接不會同時出現在兩個房間。
//
//  2. 共享狀態（sharedState）：
//     - 不透明 blob：伺服器只存儲與轉發，不解析內容
//     - last-writer-wins：任何客戶端推送 sync_state 即整塊替換
//     - 信任約定：「房主」客戶端的同步被視為權威（約定而非強制）
//
//  3. 生命週期：
//     預設房間在行程啟動時創建，存活至行程結束——即使成員數歸零
//     也不銷毀，讓重連的玩家能找回狀態（行程重啟後狀態不保留，
//     屬於設計上接受的限制）。
type Room struct {
	ID        string
	CreatedAt time.Time

	Players map[string]*Player

	sharedState json.RawMessage // 不透明遊戲狀態（last-writer-wins）
	joinSeq     int             // 單調遞增，用於預設名稱

	Mu sync.RWMutex
}

// NewRoom 創建房間
func NewRoom(id string) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		Players:   make(map[string]*Player),
	}
}

// AddPlayer 加入玩家
//
// 連接成功即加入，沒有失敗路徑（容量、權限都不在此設計範圍內）。
// 返回玩家快照與加入後的成員數，兩者在同一臨界區內取得，
// 保證廣播出去的 playerCount 等於事件發生時的真實成員數。
func (r *Room) AddPlayer(playerID string) (Player, int) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	r.joinSeq++
	player := &Player{
		ID:       playerID,
		Name:     fmt.Sprintf("Player %d", r.joinSeq),
		JoinedAt: time.Now(),
	}
	r.Players[playerID] = player

	return *player, len(r.Players)
}

// RemovePlayer 移除玩家
//
// 冪等：玩家不存在時返回 removed=false，不是錯誤。
// 斷線與傳輸錯誤都走這條路徑，重複的關閉訊號必須是 no-op。
func (r *Room) RemovePlayer(playerID string) (count int, removed bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if _, exists := r.Players[playerID]; !exists {
		return len(r.Players), false
	}

	delete(r.Players, playerID)
	return len(r.Players), true
}

// SetPlayerName 更改玩家顯示名稱
//
// last-write-wins：同一連接快速連發兩次改名，最終名稱等於第二個值。
func (r *Room) SetPlayerName(playerID, name string) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	player, exists := r.Players[playerID]
	if !exists {
		return fmt.Errorf("玩家不在房間內: %s", playerID)
	}

	player.Name = name
	return nil
}

// PlayerName 獲取玩家顯示名稱
func (r *Room) PlayerName(playerID string) (string, bool) {
	r.Mu.RLock()
	defer r.Mu.RUnlock()

	player, exists := r.Players[playerID]
	if !exists {
		return "", false
	}
	return player.Name, true
}

// SetSharedState 整塊替換共享狀態
//
// 空輸入存為 nil，避免長度為零的 RawMessage 在序列化時出錯。
func (r *Room) SetSharedState(state json.RawMessage) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if len(state) == 0 {
		r.sharedState = nil
		return
	}
	r.sharedState = make(json.RawMessage, len(state))
	copy(r.sharedState, state)
}

// SharedState 獲取共享狀態的副本
//
// 尚未有任何客戶端同步過狀態時返回 nil（序列化為 JSON null）。
func (r *Room) SharedState() json.RawMessage {
	r.Mu.RLock()
	defer r.Mu.RUnlock()

	if r.sharedState == nil {
		return nil
	}
	state := make(json.RawMessage, len(r.sharedState))
	copy(state, r.sharedState)
	return state
}

// PlayerCount 獲取成員數
func (r *Room) PlayerCount() int {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return len(r.Players)
}

// GetState 獲取房間狀態快照（用於統計與測試）
func (r *Room) GetState() map[string]any {
	r.Mu.RLock()
	defer r.Mu.RUnlock()

	players := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, *p)
	}

	return map[string]any{
		"room_id":      r.ID,
		"player_count": len(r.Players),
		"players":      players,
		"has_state":    r.sharedState != nil,
		"created_at":   r.CreatedAt,
	}
}
