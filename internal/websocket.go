package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何協調多個客戶端的連接生命週期，並在成員變動時通知所有同伴？
//
// 核心挑戰：
//   1. 生命週期：connect / disconnect / error 三種事件的狀態一致性
//   2. 房間級序列化：成員變動與廣播必須原子，playerCount 才不會撒謊
//   3. 廣播隔離：單一成員發送失敗不能影響其他成員
//   4. 自癒：死連接透過心跳檢測與關閉回調清理，不需要人工干預
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接（兩層 map：roomID -> playerID -> Client）
//   ✅ 房間級互斥鎖 - 事件處理器在整個處理期間持有（等價於單執行緒反應器）
//   ✅ 緩衝 channel + 非阻塞發送 - 發送永不等待，慢客戶端被跳過
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）

// Hub WebSocket 連接中心
//
// 並發契約（對應單執行緒事件迴圈的等價保證）：
//   - 每個房間的 connect、message、disconnect 處理全程持有該房間的
//     事件鎖（roomClients.mu），處理器之間完全序列化
//   - 廣播在持有事件鎖期間對緩衝 channel 做非阻塞投遞，
//     不會在持鎖期間做任何 I/O
//   - 因此任何事件中讀到的成員數都等於事件發生當下的真實值
type Hub struct {
	manager  *Manager
	logger   *slog.Logger
	relay    RelayConfig
	upgrader websocket.Upgrader

	rooms map[string]*roomClients // roomID -> 房間的連接集合
	mu    sync.RWMutex
}

// roomClients 一個房間的連接集合
//
// mu 是房間的事件鎖：持有期間成員映射與 Send channel 的
// 投遞/關閉都是獨占的，這是冪等移除與廣播計數正確性的基礎。
type roomClients struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// Client WebSocket 連接
//
// 連接狀態機：CONNECTING → CONNECTED → DISCONNECTED（終態）。
// 斷線重連的客戶端拿到全新 ID，需自行透過 sync_state 重新同步——
// 這是刻意的簡化，身份保留屬於更高層的職責。
type Client struct {
	ID       string
	RoomID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	LastPing time.Time

	mu        sync.Mutex
	closeOnce sync.Once // 確保 Send channel 只關閉一次
}

// NewHub 創建 WebSocket Hub
func NewHub(manager *Manager, relay RelayConfig, logger *slog.Logger) *Hub {
	return &Hub{
		manager: manager,
		logger:  logger,
		relay:   relay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 傳輸層加密與來源檢查交給部署環境（反向代理）
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		rooms: make(map[string]*roomClients),
	}
}

// ServeWS 處理 WebSocket 連接
//
// 連接即加入：升級成功後立刻分配 ID 並進入房間，沒有失敗路徑。
// 房間由 room 查詢參數指定，缺省進入眾所周知的預設房間。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = DefaultRoomID
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	client := &Client{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		Conn:     conn,
		Send:     make(chan []byte, hub.relay.SendBuffer),
		Hub:      hub,
		LastPing: time.Now(),
	}

	hub.register(client)

	go client.writePump()
	go client.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"room_id", roomID,
		"player_id", client.ID)
}

// bucket 獲取房間的連接集合，不存在則創建
func (hub *Hub) bucket(roomID string) *roomClients {
	hub.mu.RLock()
	b, exists := hub.rooms[roomID]
	hub.mu.RUnlock()

	if exists {
		return b
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if b, exists := hub.rooms[roomID]; exists {
		return b
	}

	b = &roomClients{clients: make(map[string]*Client)}
	hub.rooms[roomID] = b
	return b
}

// register 註冊連接（onConnect）
//
// 在同一臨界區內完成三件事，順序是協議承諾：
//  1. 加入房間、記錄映射
//  2. 向新連接發送 connected 確認（攜帶 ID、房間、成員數、共享狀態，
//     讓晚加入者直接追上進度）——保證先於任何廣播送達
//  3. 向其他成員廣播 player_joined（不含新連接自己）
func (hub *Hub) register(client *Client) {
	room := hub.manager.GetOrCreateRoom(client.RoomID)
	b := hub.bucket(client.RoomID)

	b.mu.Lock()
	defer b.mu.Unlock()

	player, count := room.AddPlayer(client.ID)
	hub.manager.BindPlayer(client.ID, client.RoomID)
	b.clients[client.ID] = client

	ack := ConnectedEvent{
		Kind:        KindConnected,
		PlayerID:    client.ID,
		RoomID:      room.ID,
		PlayerCount: count,
		GameState:   room.SharedState(),
	}
	if data, err := json.Marshal(ack); err != nil {
		hub.logger.Error("序列化 connected 事件失敗", "error", err)
	} else {
		hub.deliver(client, data)
	}

	joined := PlayerJoinedEvent{
		Kind:        KindPlayerJoined,
		PlayerID:    client.ID,
		PlayerCount: count,
	}
	if data, err := json.Marshal(joined); err != nil {
		hub.logger.Error("序列化 player_joined 事件失敗", "error", err)
	} else {
		hub.broadcastLocked(b, data, client.ID)
	}

	hub.logger.Info("玩家加入房間",
		"room_id", room.ID,
		"player_id", client.ID,
		"player_name", player.Name,
		"player_count", count)
}

// unregister 取消註冊連接（onDisconnect / onError）
//
// 冪等：關閉與錯誤都走這條路徑，重複呼叫是 no-op。
// 只有真正移除了成員才廣播 player_left。
func (hub *Hub) unregister(client *Client) {
	b := hub.bucket(client.RoomID)

	b.mu.Lock()
	defer b.mu.Unlock()

	actual, exists := b.clients[client.ID]
	if !exists || actual != client {
		return
	}

	delete(b.clients, client.ID)
	client.closeOnce.Do(func() {
		close(client.Send)
	})

	hub.manager.UnbindPlayer(client.ID)

	room, err := hub.manager.GetRoom(client.RoomID)
	if err != nil {
		return
	}

	count, removed := room.RemovePlayer(client.ID)
	if !removed {
		return
	}

	left := PlayerLeftEvent{
		Kind:        KindPlayerLeft,
		PlayerID:    client.ID,
		PlayerCount: count,
	}
	if data, err := json.Marshal(left); err != nil {
		hub.logger.Error("序列化 player_left 事件失敗", "error", err)
	} else {
		hub.broadcastLocked(b, data, client.ID)
	}

	hub.logger.Info("玩家離開房間",
		"room_id", client.RoomID,
		"player_id", client.ID,
		"player_count", count)
}

// broadcastLocked 廣播訊息到房間（呼叫方持有房間事件鎖）
//
// 失敗語義：投遞對象的緩衝區滿時跳過該成員並記錄，迴圈繼續——
// 單一成員的問題不影響其他成員的送達。被跳過的成員不在此清理，
// 交給其傳輸層自己的關閉/錯誤回調（被動立場）。
// 跨成員的送達順序不保證，只保證每個就緒成員恰好收到一次。
func (hub *Hub) broadcastLocked(b *roomClients, message []byte, excludeID string) {
	for id, client := range b.clients {
		if id == excludeID {
			continue
		}
		hub.deliver(client, message)
	}
}

// deliver 向單一連接投遞訊息（呼叫方持有房間事件鎖）
func (hub *Hub) deliver(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		hub.logger.Warn("連接緩衝區滿，跳過此成員",
			"room_id", client.RoomID,
			"player_id", client.ID)
	}
}

// Stop 停止 WebSocket Hub
//
// 關閉所有連接的 Send channel，writePump 會送出關閉訊框後退出。
func (hub *Hub) Stop() {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for _, b := range hub.rooms {
		b.mu.Lock()
		for _, client := range b.clients {
			client.closeOnce.Do(func() {
				close(client.Send)
			})
			client.Conn.Close()
		}
		b.clients = make(map[string]*Client)
		b.mu.Unlock()
	}
	hub.rooms = make(map[string]*roomClients)

	hub.logger.Info("WebSocket Hub 已停止")
}

// ConnectionCount 獲取各房間連接數
func (hub *Hub) ConnectionCount() map[string]int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	result := make(map[string]int, len(hub.rooms))
	for roomID, b := range hub.rooms {
		b.mu.Lock()
		result[roomID] = len(b.clients)
		b.mu.Unlock()
	}
	return result
}

// readPump 讀取客戶端訊息
//
// 心跳機制（讀取端）：60 秒內沒有任何訊息（包括 Pong）就關閉連接，
// 配合 writePump 的 54 秒 Ping（留 6 秒余量）。
// 死連接由此路徑自癒：超時 → ReadMessage 返回錯誤 → unregister。
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.relay.MaxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.Hub.relay.PongTimeout)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.Hub.relay.PongTimeout)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			// 錯誤等同於關閉：記錄後走同一條清理路徑，不波及其他連接
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"room_id", c.RoomID,
					"player_id", c.ID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.Hub.route(c, message)
		}
	}
}

// writePump 寫入訊息到客戶端
//
// 心跳機制（發送端）：54 秒 Ping 間隔避開常見的 60 秒代理超時。
// 所有發送都走緩衝 channel，業務邏輯永不等待網絡 I/O。
func (c *Client) writePump() {
	ticker := time.NewTicker(c.Hub.relay.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.relay.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，送出關閉訊框後退出
				deadline := time.Now().Add(time.Second)
				if err := c.Conn.SetWriteDeadline(deadline); err == nil {
					_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					c.Hub.logger.Error("發送訊息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.relay.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
