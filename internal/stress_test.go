package internal_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/14-game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainUntil 讀取訊框直到遇到指定類型（跳過途中其他廣播）
func drainUntil(t *testing.T, conn *websocket.Conn, kind string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var event map[string]any
		require.NoError(t, json.Unmarshal(data, &event))
		if event["kind"] == kind {
			return event
		}
	}

	t.Fatalf("等待 %s 訊框超時", kind)
	return nil
}

// TestStress_ConcurrentConnections 壓力測試：並發連接
//
// 大量客戶端同時湧入同一房間，驗證成員計數不丟不重，
// 且全部斷開後房間乾淨歸零。
func TestStress_ConcurrentConnections(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	rs := newRelayServer(t)

	const numClients = 50
	conns := make([]*websocket.Conn, numClients)
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			conn := rs.dial(t, "")
			ack := readKind(t, conn, "connected")
			assert.NotEmpty(t, ack["playerId"])
			conns[n] = conn
		}(i)
	}
	wg.Wait()
	connectDuration := time.Since(start)

	room, err := rs.manager.GetRoom(internal.DefaultRoomID)
	require.NoError(t, err)
	assert.Equal(t, numClients, room.PlayerCount())

	// 全部斷開
	for _, conn := range conns {
		require.NoError(t, conn.Close())
	}

	require.Eventually(t, func() bool {
		return room.PlayerCount() == 0
	}, 5*time.Second, 20*time.Millisecond)

	t.Logf("壓力測試結果：%d 個並發連接，耗時 %v", numClients, connectDuration)
}

// TestStress_BroadcastFanout 壓力測試：廣播扇出
//
// 一個成員發送，房間內每個成員（含發送者）恰好收到一次。
func TestStress_BroadcastFanout(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	rs := newRelayServer(t)

	const numClients = 20
	conns := make([]*websocket.Conn, numClients)

	// 順序加入，避免 connected 與 player_joined 交錯的不確定性
	for i := 0; i < numClients; i++ {
		conn := rs.dial(t, "")
		readKind(t, conn, "connected")
		conns[i] = conn
	}

	start := time.Now()
	sendJSON(t, conns[0], map[string]any{
		"kind":   "game_action",
		"action": "start_game",
	})

	// 每個成員都收到恰好一次（中途的 player_joined 廣播被跳過）
	for i, conn := range conns {
		event := drainUntil(t, conn, "game_action")
		assert.Equal(t, "start_game", event["action"], "成員 %d", i)
	}
	fanoutDuration := time.Since(start)

	t.Logf("壓力測試結果：廣播扇出到 %d 個成員，耗時 %v", numClients, fanoutDuration)
}

// TestStress_RapidStateSync 壓力測試：高頻狀態同步
//
// 快速連發的全量同步以最後寫入者為準，晚加入者拿到最終狀態。
func TestStress_RapidStateSync(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	rs := newRelayServer(t)

	connA, _ := rs.connect(t, "")

	const numSyncs = 100
	for i := 1; i <= numSyncs; i++ {
		sendJSON(t, connA, map[string]any{
			"kind":      "sync_state",
			"gameState": map[string]any{"version": i},
		})
	}

	// 等待最後一次同步落地
	require.Eventually(t, func() bool {
		room, err := rs.manager.GetRoom(internal.DefaultRoomID)
		if err != nil {
			return false
		}
		var state map[string]any
		if json.Unmarshal(room.SharedState(), &state) != nil {
			return false
		}
		return state["version"] == float64(numSyncs)
	}, 5*time.Second, 20*time.Millisecond)

	// 晚加入者直接拿到最終版本
	_, ackB := rs.connect(t, "")
	state := ackB["gameState"].(map[string]any)
	assert.EqualValues(t, numSyncs, state["version"])

	t.Logf("壓力測試結果：%d 次連續狀態同步，最終版本正確", numSyncs)
}
