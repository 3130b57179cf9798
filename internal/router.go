package internal

import (
	"encoding/json"
	"time"
)

// 系統設計問題：
//   收到一個已解析的訊息後，該改什麼狀態、廣播給誰？
//
// 每種已知類型遵循同一條設計規則：至多一次狀態變更、至多一次廣播，
// 處理過程只有內存 map 操作，永不阻塞。三種模式：
//   - 變更後回聲給其他人：set_name、sync_state（發送者已有自己的副本）
//   - 只轉發不變更：roll_dice、player_move、game_action、chat（含發送者）
//   - 單播回發送者：ping → pong
//   - 回退：未知 kind 附上 fromPlayerId 原樣廣播（含發送者），
//     讓協議可以前向擴展而不改伺服器

// route 分派入站訊框
//
// 解析失敗只記錄並丟棄——格式錯誤的輸入絕不關閉連接或影響行程。
// 分派全程持有房間事件鎖，與 connect/disconnect 處理互相序列化。
func (hub *Hub) route(c *Client, raw []byte) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		hub.logger.Warn("丟棄格式錯誤的訊框",
			"error", err,
			"room_id", c.RoomID,
			"player_id", c.ID)
		return
	}

	room, err := hub.manager.GetRoom(c.RoomID)
	if err != nil {
		hub.logger.Error("訊息來自未知房間",
			"room_id", c.RoomID,
			"player_id", c.ID)
		return
	}

	b := hub.bucket(c.RoomID)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch env.Kind {
	case KindSetName:
		hub.handleSetName(c, room, b, env)
	case KindRollDice:
		hub.handleRollDice(c, b, env)
	case KindPlayerMove:
		hub.handlePlayerMove(c, b, env)
	case KindGameAction:
		hub.handleGameAction(c, b, env)
	case KindSyncState:
		hub.handleSyncState(c, room, b, env)
	case KindChat:
		hub.handleChat(c, room, b, env)
	case KindPing:
		hub.handlePing(c)
	default:
		hub.handleForward(c, b, env)
	}
}

// handleSetName 更改顯示名稱：變更後回聲給其他成員（不含發送者）
func (hub *Hub) handleSetName(c *Client, room *Room, b *roomClients, env *Envelope) {
	var p SetNamePayload
	if err := env.DecodePayload(&p); err != nil {
		hub.logger.Warn("丟棄格式錯誤的訊框", "error", err, "player_id", c.ID)
		return
	}

	if err := room.SetPlayerName(c.ID, p.Name); err != nil {
		hub.logger.Warn("改名失敗", "error", err, "player_id", c.ID)
		return
	}

	hub.broadcastEvent(b, PlayerUpdatedEvent{
		Kind:     KindPlayerUpdated,
		PlayerID: c.ID,
		Name:     p.Name,
	}, c.ID)
}

// handleRollDice 擲骰子：只轉發，含發送者
func (hub *Hub) handleRollDice(c *Client, b *roomClients, env *Envelope) {
	var p RollDicePayload
	if err := env.DecodePayload(&p); err != nil {
		hub.logger.Warn("丟棄格式錯誤的訊框", "error", err, "player_id", c.ID)
		return
	}

	hub.broadcastEvent(b, DiceRolledEvent{
		Kind:     KindDiceRolled,
		PlayerID: c.ID,
		Value:    p.Value,
		Power:    p.Power,
	}, "")
}

// handlePlayerMove 玩家移動：只轉發，含發送者
func (hub *Hub) handlePlayerMove(c *Client, b *roomClients, env *Envelope) {
	var p PlayerMovePayload
	if err := env.DecodePayload(&p); err != nil {
		hub.logger.Warn("丟棄格式錯誤的訊框", "error", err, "player_id", c.ID)
		return
	}

	hub.broadcastEvent(b, PlayerMovedEvent{
		Kind:           KindPlayerMoved,
		PlayerID:       c.ID,
		Position:       p.Position,
		TargetPosition: p.TargetPosition,
	}, "")
}

// handleGameAction 通用遊戲動作：只轉發，含發送者
func (hub *Hub) handleGameAction(c *Client, b *roomClients, env *Envelope) {
	var p GameActionPayload
	if err := env.DecodePayload(&p); err != nil {
		hub.logger.Warn("丟棄格式錯誤的訊框", "error", err, "player_id", c.ID)
		return
	}

	hub.broadcastEvent(b, GameActionEvent{
		Kind:     KindGameAction,
		PlayerID: c.ID,
		Action:   p.Action,
		Data:     p.Data,
	}, "")
}

// handleSyncState 全量狀態同步：整塊替換後回聲給其他成員
//
// 發送者被排除——它手上就是權威副本，回聲只會浪費帶寬。
// 伺服器不驗證狀態內容（信任「房主」客戶端是刻意的開放設計點）。
func (hub *Hub) handleSyncState(c *Client, room *Room, b *roomClients, env *Envelope) {
	var p SyncStatePayload
	if err := env.DecodePayload(&p); err != nil {
		hub.logger.Warn("丟棄格式錯誤的訊框", "error", err, "player_id", c.ID)
		return
	}

	room.SetSharedState(p.GameState)

	hub.broadcastEvent(b, StateSyncedEvent{
		Kind:      KindStateSynced,
		GameState: p.GameState,
	}, c.ID)
}

// handleChat 聊天訊息：附上名稱與時間戳後轉發，含發送者
func (hub *Hub) handleChat(c *Client, room *Room, b *roomClients, env *Envelope) {
	var p ChatPayload
	if err := env.DecodePayload(&p); err != nil {
		hub.logger.Warn("丟棄格式錯誤的訊框", "error", err, "player_id", c.ID)
		return
	}

	name, _ := room.PlayerName(c.ID)

	hub.broadcastEvent(b, ChatEvent{
		Kind:       KindChat,
		PlayerID:   c.ID,
		PlayerName: name,
		Message:    p.Message,
		Timestamp:  time.Now().Unix(),
	}, "")
}

// handlePing 應用層心跳：單播 pong 回發送者
func (hub *Hub) handlePing(c *Client) {
	data, err := json.Marshal(PongEvent{Kind: KindPong})
	if err != nil {
		hub.logger.Error("序列化 pong 失敗", "error", err)
		return
	}
	hub.deliver(c, data)
}

// handleForward 未知類型的回退轉發：原樣廣播，附上 fromPlayerId
func (hub *Hub) handleForward(c *Client, b *roomClients, env *Envelope) {
	data, err := ForwardPayload(env.Raw, c.ID)
	if err != nil {
		hub.logger.Warn("丟棄格式錯誤的訊框", "error", err, "player_id", c.ID)
		return
	}

	hub.broadcastLocked(b, data, "")
}

// broadcastEvent 序列化事件並廣播（呼叫方持有房間事件鎖）
func (hub *Hub) broadcastEvent(b *roomClients, event any, excludeID string) {
	data, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err)
		return
	}
	hub.broadcastLocked(b, data, excludeID)
}
