// Package relay 提供了一個即時多人遊戲中繼服務器。
//
// 實現了一個協調多個客戶端共享同一局棋盤遊戲的中繼服務，包含以下核心功能：
//
// # 連接生命週期管理
//
// 提供完整的連接生命週期處理：
//   - 連接即加入：升級成功後分配 ID 並進入房間，無失敗路徑
//   - connected 確認攜帶當前共享狀態，晚加入者直接追上進度
//   - 斷線與錯誤走同一條冪等清理路徑
//   - player_joined / player_left 即時通知所有同伴
//
// # 訊息協議
//
// 以 kind 欄位分派的標記聯合協議：
//   - 已知類型有類型安全的負載結構（改名、擲骰、移動、聊天、狀態同步）
//   - 未知類型附上 fromPlayerId 原樣轉發（前向兼容，零驗證）
//   - 格式錯誤的訊框記錄後丟棄，絕不影響連接或行程
//
// # 共享狀態
//
// 每個房間持有一份不透明的遊戲狀態 blob：
//   - last-writer-wins：任何客戶端的 sync_state 整塊替換
//   - 伺服器不驗證遊戲規則（信任「房主」客戶端是設計約定）
//   - 行程生命週期內保留，預設房間成員歸零也不銷毀
//
// # 併發安全設計
//
// 採用房間級序列化策略（等價於單執行緒事件迴圈的保證）：
//   - 每個房間一把事件鎖，connect/message/disconnect 全程持有
//   - 廣播對緩衝 channel 非阻塞投遞，持鎖期間不做 I/O
//   - 慢客戶端被跳過而非等待，單一成員故障不波及其他成員
//
// 使用範例
//
// 啟動服務器：
//
//	manager := internal.NewManager(logger)
//	hub := internal.NewHub(manager, cfg.Relay, logger)
//	handler := internal.NewHandler(manager, hub, logger)
//
//	mux := http.NewServeMux()
//	mux.Handle("/", handler.Routes())
//	mux.HandleFunc("GET /ws", hub.ServeWS)
//	log.Fatal(http.ListenAndServe(":8080", mux))
//
// 客戶端連接：
//
//	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:8080/ws", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Hub 層：連接註冊、生命週期、廣播引擎
//   - Router 層：按 kind 分派入站訊息
//   - Manager 層：房間註冊表與玩家房間映射
//   - Room 層：成員集合與共享狀態
//
// 配置選項
//
// 優先級：命令行參數 > 環境變數（PORT、LOG_LEVEL） > 配置檔 > 預設值：
//   - -port：服務監聽端口（預設 8080）
//   - -config：YAML 配置檔路徑（可選）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// 明確的範圍邊界
//
// 以下不在本服務職責內，由部署環境或客戶端承擔：
//   - 玩家認證與授權
//   - 行程重啟後的狀態持久化
//   - 遊戲規則驗證（骰子合法性、回合順序）
//   - 水平擴展與跨行程房間分佈
//   - 傳輸加密（交給反向代理）
package relay
