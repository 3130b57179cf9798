package internal

import (
	"encoding/json"
	"fmt"
)

// 系統設計問題：
//   如何定義一個可前向擴展的遊戲訊息協議？
//
// 核心挑戰：
//   1. 無模式負載：伺服器不驗證遊戲規則，只認識少數幾種訊息類型
//   2. 前向兼容：客戶端新增訊息類型時，伺服器不需要改動
//   3. 類型安全：已知類型的欄位要有編譯期檢查
//
// 設計方案：
//   ✅ 標記聯合（tagged union）- 以 kind 欄位分派
//   ✅ 保留原始 JSON - 未知類型原樣轉發
//   ✅ 每種已知類型獨立的 payload 結構 - 類型安全

// 客戶端入站訊息類型
const (
	KindSetName    = "set_name"    // 更改顯示名稱
	KindRollDice   = "roll_dice"   // 擲骰子
	KindPlayerMove = "player_move" // 玩家移動
	KindGameAction = "game_action" // 通用遊戲動作
	KindSyncState  = "sync_state"  // 全量狀態同步
	KindChat       = "chat"        // 聊天訊息
	KindPing       = "ping"        // 應用層心跳
)

// 伺服器出站訊息類型
const (
	KindConnected     = "connected"      // 連接確認（僅發給新連接）
	KindPlayerJoined  = "player_joined"  // 玩家加入
	KindPlayerLeft    = "player_left"    // 玩家離開
	KindPlayerUpdated = "player_updated" // 玩家資訊更新
	KindDiceRolled    = "dice_rolled"    // 骰子結果
	KindPlayerMoved   = "player_moved"   // 移動結果
	KindStateSynced   = "state_synced"   // 狀態已同步
	KindPong          = "pong"           // 心跳回應
)

// Envelope 入站訊框
//
// 標記聯合的「標記」部分：只解出 kind，原始 JSON 保留在 Raw 中。
// 已知類型再用 DecodePayload 解出具體欄位；未知類型直接用 Raw 轉發。
type Envelope struct {
	Kind string
	Raw  json.RawMessage
}

// ParseEnvelope 解析入站訊框
//
// 錯誤處理約定（見錯誤分類）：
//   - 無法解析的 JSON → 返回錯誤，呼叫方記錄日誌並丟棄訊框
//   - 缺少 kind 欄位 → 同樣視為格式錯誤
//
// 格式錯誤絕不導致連接關閉或行程崩潰。
func ParseEnvelope(data []byte) (*Envelope, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("解析訊框失敗: %w", err)
	}
	if probe.Kind == "" {
		return nil, fmt.Errorf("訊框缺少 kind 欄位")
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return &Envelope{Kind: probe.Kind, Raw: raw}, nil
}

// DecodePayload 解出已知類型的負載
func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("解析 %s 負載失敗: %w", e.Kind, err)
	}
	return nil
}

// Vector3 三維座標（透傳給客戶端的 3D 場景）
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// 已知入站類型的負載結構

type SetNamePayload struct {
	Name string `json:"name"`
}

type RollDicePayload struct {
	Value float64  `json:"value"`
	Power *float64 `json:"power,omitempty"`
}

type PlayerMovePayload struct {
	Position       float64  `json:"position"`
	TargetPosition *Vector3 `json:"targetPosition,omitempty"`
}

type GameActionPayload struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type SyncStatePayload struct {
	GameState json.RawMessage `json:"gameState"`
}

type ChatPayload struct {
	Message string `json:"message"`
}

// 出站事件結構
//
// 欄位名稱是對客戶端的協議承諾（camelCase），不可改動。

// ConnectedEvent 連接確認：只發給新連接的客戶端，
// 攜帶分配的 ID、房間資訊與當前共享狀態（讓晚加入者追上進度）。
type ConnectedEvent struct {
	Kind        string          `json:"kind"`
	PlayerID    string          `json:"playerId"`
	RoomID      string          `json:"roomId"`
	PlayerCount int             `json:"playerCount"`
	GameState   json.RawMessage `json:"gameState"`
}

type PlayerJoinedEvent struct {
	Kind        string `json:"kind"`
	PlayerID    string `json:"playerId"`
	PlayerCount int    `json:"playerCount"`
}

type PlayerLeftEvent struct {
	Kind        string `json:"kind"`
	PlayerID    string `json:"playerId"`
	PlayerCount int    `json:"playerCount"`
}

type PlayerUpdatedEvent struct {
	Kind     string `json:"kind"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type DiceRolledEvent struct {
	Kind     string   `json:"kind"`
	PlayerID string   `json:"playerId"`
	Value    float64  `json:"value"`
	Power    *float64 `json:"power,omitempty"`
}

type PlayerMovedEvent struct {
	Kind           string   `json:"kind"`
	PlayerID       string   `json:"playerId"`
	Position       float64  `json:"position"`
	TargetPosition *Vector3 `json:"targetPosition,omitempty"`
}

type GameActionEvent struct {
	Kind     string          `json:"kind"`
	PlayerID string          `json:"playerId"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type StateSyncedEvent struct {
	Kind      string          `json:"kind"`
	GameState json.RawMessage `json:"gameState"`
}

type ChatEvent struct {
	Kind       string `json:"kind"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

type PongEvent struct {
	Kind string `json:"kind"`
}

// ForwardPayload 未知類型的回退轉發
//
// 協議前向兼容的核心：伺服器不認識的 kind 原樣廣播給全房間，
// 只附加 fromPlayerId 標明來源。客戶端可以自行定義新訊息類型，
// 不需要改動伺服器（代價是零驗證）。
func ForwardPayload(raw json.RawMessage, fromPlayerID string) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("解析轉發負載失敗: %w", err)
	}

	fields["fromPlayerId"] = fromPlayerID

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("序列化轉發負載失敗: %w", err)
	}
	return data, nil
}
