package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echelon/backend/config"
	"echelon/backend/internal/dto"
	"echelon/backend/internal/model"
	"echelon/backend/internal/notify"
	"echelon/backend/internal/service"
	"echelon/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testUserID = "0b6f5a8e-1c2d-4e3f-9a0b-112233445566"

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock EventService ──

type mockEventService struct {
	createResult   *dto.EventResponse
	createErr      error
	getResult      *dto.EventResponse
	getErr         error
	visibleResult  []dto.EventResponse
	visibleErr     error
	upcomingResult []dto.EventResponse
	upcomingErr    error

	lastCaller string
}

func (m *mockEventService) Create(_ context.Context, _ *dto.CreateEventRequest, callerID string) (*dto.EventResponse, error) {
	m.lastCaller = callerID
	return m.createResult, m.createErr
}
func (m *mockEventService) GetByID(_ context.Context, _ string) (*dto.EventResponse, error) {
	return m.getResult, m.getErr
}
func (m *mockEventService) ListVisible(_ context.Context, _ string, _ time.Time) ([]dto.EventResponse, error) {
	return m.visibleResult, m.visibleErr
}
func (m *mockEventService) ListUpcoming(_ context.Context, _ time.Time) ([]dto.EventResponse, error) {
	return m.upcomingResult, m.upcomingErr
}

// ── Mock ParticipationService ──

type mockParticipationService struct {
	result *dto.ParticipationResponse
	err    error

	lastUser  string
	lastEvent string
}

func (m *mockParticipationService) Participate(_ context.Context, userID, eventID string, _ time.Time) (*dto.ParticipationResponse, error) {
	m.lastUser, m.lastEvent = userID, eventID
	return m.result, m.err
}

// ── Mock LedgerService ──

type mockLedgerService struct {
	purchaseResult    *dto.PurchaseResponse
	purchaseErr       error
	ledgerResult      *dto.LedgerResponse
	ledgerErr         error
	leaderboardResult []dto.LeaderboardEntry
	leaderboardErr    error

	lastLimit    int
	lastPurchase *dto.CompletePurchaseRequest
}

func (m *mockLedgerService) ApplyCredit(_ context.Context, _ *model.PointCredit) (*model.LedgerBalance, error) {
	return nil, errors.New("not implemented")
}
func (m *mockLedgerService) CompletePurchase(_ context.Context, req *dto.CompletePurchaseRequest) (*dto.PurchaseResponse, error) {
	m.lastPurchase = req
	return m.purchaseResult, m.purchaseErr
}
func (m *mockLedgerService) GetLedger(_ context.Context, _ string) (*dto.LedgerResponse, error) {
	return m.ledgerResult, m.ledgerErr
}
func (m *mockLedgerService) Leaderboard(_ context.Context, limit int) ([]dto.LeaderboardEntry, error) {
	m.lastLimit = limit
	return m.leaderboardResult, m.leaderboardErr
}
func (m *mockLedgerService) EnsureAccount(_ context.Context, _, _ string) error {
	return nil
}

// ── Mock NotificationService ──

type mockNotificationService struct {
	result []dto.NotificationResponse
	err    error

	lastLimit int
}

func (m *mockNotificationService) ListForUser(_ context.Context, _ string, limit int) ([]dto.NotificationResponse, error) {
	m.lastLimit = limit
	return m.result, m.err
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
}

func (m *mockExportService) ExportLeaderboard(_ context.Context, _ int, _ time.Time) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

func setAuth(c *gin.Context) {
	c.Set("user_id", testUserID)
	c.Set("role", "admin")
	c.Set("username", "alice")
}

func withAuth(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		setAuth(c)
		h(c)
	}
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func serve(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

// ═══════════════════════════════════════════════════════════
// Error Mapping Tests
// ═══════════════════════════════════════════════════════════

func TestHandleEngineError_StatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   int
	}{
		{service.ErrEventNotFound, http.StatusNotFound, codeEventNotFound},
		{service.ErrUserNotFound, http.StatusNotFound, codeUserNotFound},
		{service.ErrEventExpired, http.StatusGone, codeEventExpired},
		{service.ErrTierMismatch, http.StatusForbidden, codeTierMismatch},
		{service.ErrSoldOut, http.StatusConflict, codeSoldOut},
		{fmt.Errorf("%w: stock 不能为负数", service.ErrEventInvalid), http.StatusBadRequest, codeEventInvalid},
		{fmt.Errorf("%w: amount 不合法", service.ErrPurchaseInvalid), http.StatusBadRequest, codePurchaseInvalid},
		{service.ErrPurchaseDuplicate, http.StatusConflict, codePurchaseDup},
		{service.ErrExportEmpty, http.StatusNotFound, codeExportEmpty},
		{fmt.Errorf("参与活动: %w", service.ErrStoreUnavailable), http.StatusServiceUnavailable, codeStoreUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, 50000},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { handleEngineError(c, tt.err) })
			w := serve(r, "GET", "/x", nil)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if resp := parseResponse(w); resp.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, resp.Code)
			}
			retryAfter := w.Header().Get("Retry-After")
			if tt.wantStatus == http.StatusServiceUnavailable && retryAfter != "1" {
				t.Errorf("503 应携带 Retry-After: 1，实际 %q", retryAfter)
			}
			if tt.wantStatus != http.StatusServiceUnavailable && retryAfter != "" {
				t.Errorf("终态错误不应携带 Retry-After，实际 %q", retryAfter)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════
// EventHandler Tests
// ═══════════════════════════════════════════════════════════

func TestEventHandler_Participate_Success(t *testing.T) {
	part := &mockParticipationService{result: &dto.ParticipationResponse{
		EventID:        "e-1",
		PointsAwarded:  50,
		RemainingStock: 9,
	}}
	h := NewEventHandler(&mockEventService{}, part)

	r := gin.New()
	r.POST("/events/:id/participate", withAuth(h.Participate))
	w := serve(r, "POST", "/events/e-1/participate", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if part.lastUser != testUserID || part.lastEvent != "e-1" {
		t.Errorf("参数透传错误: user=%s event=%s", part.lastUser, part.lastEvent)
	}
	if resp := parseResponse(w); resp.Code != 0 {
		t.Errorf("expected code 0, got %d", resp.Code)
	}
}

func TestEventHandler_Participate_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"售罄", service.ErrSoldOut, http.StatusConflict},
		{"等级不符", service.ErrTierMismatch, http.StatusForbidden},
		{"已结束", service.ErrEventExpired, http.StatusGone},
		{"不存在", service.ErrEventNotFound, http.StatusNotFound},
		{"存储不可用", service.ErrStoreUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewEventHandler(&mockEventService{}, &mockParticipationService{err: tt.err})

			r := gin.New()
			r.POST("/events/:id/participate", withAuth(h.Participate))
			w := serve(r, "POST", "/events/e-1/participate", nil)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestEventHandler_Participate_Unauthenticated(t *testing.T) {
	h := NewEventHandler(&mockEventService{}, &mockParticipationService{})

	r := gin.New()
	r.POST("/events/:id/participate", h.Participate)
	w := serve(r, "POST", "/events/e-1/participate", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestEventHandler_CreateEvent_Success(t *testing.T) {
	events := &mockEventService{createResult: &dto.EventResponse{ID: "e-1", Name: "Spring Drop"}}
	h := NewEventHandler(events, &mockParticipationService{})

	stock := 10
	r := gin.New()
	r.POST("/events", withAuth(h.CreateEvent))
	w := serve(r, "POST", "/events", jsonBody(dto.CreateEventRequest{
		Name:         "Spring Drop",
		RequiredTier: "Lovers",
		StartTime:    "2026-01-01T00:00:00Z",
		EndTime:      "2026-02-01T00:00:00Z",
		Stock:        &stock,
	}))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if events.lastCaller != testUserID {
		t.Errorf("创建者应为当前用户，实际 %s", events.lastCaller)
	}
}

func TestEventHandler_CreateEvent_BadJSON(t *testing.T) {
	h := NewEventHandler(&mockEventService{}, &mockParticipationService{})

	r := gin.New()
	r.POST("/events", withAuth(h.CreateEvent))
	w := serve(r, "POST", "/events", strings.NewReader("invalid json"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestEventHandler_CreateEvent_MissingStock(t *testing.T) {
	h := NewEventHandler(&mockEventService{}, &mockParticipationService{})

	r := gin.New()
	r.POST("/events", withAuth(h.CreateEvent))
	w := serve(r, "POST", "/events", jsonBody(map[string]string{
		"name":          "Spring Drop",
		"required_tier": "Lovers",
		"start_time":    "2026-01-01T00:00:00Z",
		"end_time":      "2026-02-01T00:00:00Z",
	}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 10001 {
		t.Errorf("expected code 10001, got %d", resp.Code)
	}
}

func TestEventHandler_CreateEvent_InvalidEvent(t *testing.T) {
	events := &mockEventService{createErr: fmt.Errorf("%w: end_time 必须晚于 start_time", service.ErrEventInvalid)}
	h := NewEventHandler(events, &mockParticipationService{})

	stock := 1
	r := gin.New()
	r.POST("/events", withAuth(h.CreateEvent))
	w := serve(r, "POST", "/events", jsonBody(dto.CreateEventRequest{
		Name:         "Backwards",
		RequiredTier: "Solace",
		StartTime:    "2026-02-01T00:00:00Z",
		EndTime:      "2026-01-01T00:00:00Z",
		Stock:        &stock,
	}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != codeEventInvalid {
		t.Errorf("expected code %d, got %d", codeEventInvalid, resp.Code)
	}
	if !strings.Contains(resp.Details, "end_time") {
		t.Errorf("details 应包含校验原因，实际 %q", resp.Details)
	}
}

func TestEventHandler_CreateEvent_BodyTooLarge(t *testing.T) {
	h := NewEventHandler(&mockEventService{}, &mockParticipationService{})

	r := gin.New()
	r.POST("/events", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 16)
		setAuth(c)
		h.CreateEvent(c)
	})
	w := serve(r, "POST", "/events", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestEventHandler_GetEvent_NotFound(t *testing.T) {
	h := NewEventHandler(&mockEventService{getErr: service.ErrEventNotFound}, &mockParticipationService{})

	r := gin.New()
	r.GET("/events/:id", h.GetEvent)
	w := serve(r, "GET", "/events/missing", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestEventHandler_ListVisibleEvents(t *testing.T) {
	events := &mockEventService{visibleResult: []dto.EventResponse{{ID: "e-1"}, {ID: "e-2"}}}
	h := NewEventHandler(events, &mockParticipationService{})

	r := gin.New()
	r.GET("/events", withAuth(h.ListVisibleEvents))
	w := serve(r, "GET", "/events", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data response.ListData `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Total != 2 {
		t.Errorf("expected total 2, got %d", body.Data.Total)
	}
}

func TestEventHandler_ListUpcomingEvents_Empty(t *testing.T) {
	h := NewEventHandler(&mockEventService{upcomingResult: []dto.EventResponse{}}, &mockParticipationService{})

	r := gin.New()
	r.GET("/events/upcoming", h.ListUpcomingEvents)
	w := serve(r, "GET", "/events/upcoming", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// LedgerHandler Tests
// ═══════════════════════════════════════════════════════════

func TestLedgerHandler_CompletePurchase_Success(t *testing.T) {
	ledger := &mockLedgerService{purchaseResult: &dto.PurchaseResponse{
		OrderID:       "order-1",
		PointsAwarded: 80,
		Points:        80,
		Tier:          "Solace",
	}}
	h := NewLedgerHandler(ledger)

	r := gin.New()
	r.POST("/purchases/complete", h.CompletePurchase)
	w := serve(r, "POST", "/purchases/complete", jsonBody(dto.CompletePurchaseRequest{
		UserID:  testUserID,
		OrderID: "order-1",
		Amount:  "100.00",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ledger.lastPurchase == nil || ledger.lastPurchase.Amount != "100.00" {
		t.Errorf("请求未正确透传: %+v", ledger.lastPurchase)
	}
}

func TestLedgerHandler_CompletePurchase_AmountForms(t *testing.T) {
	tests := []struct {
		name       string
		amount     string
		wantStatus int
		wantAmount string
	}{
		{"数字金额", `100.5`, http.StatusOK, "100.5"},
		{"整数金额", `100`, http.StatusOK, "100"},
		{"字符串金额", `"100.50"`, http.StatusOK, "100.50"},
		{"非数字字符串", `"abc"`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &mockLedgerService{purchaseResult: &dto.PurchaseResponse{OrderID: "order-1"}}
			h := NewLedgerHandler(ledger)

			r := gin.New()
			r.POST("/purchases/complete", h.CompletePurchase)
			body := `{"user_id":"` + testUserID + `","order_id":"order-1","amount":` + tt.amount + `}`
			w := serve(r, "POST", "/purchases/complete", strings.NewReader(body))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus == http.StatusOK && ledger.lastPurchase.Amount.String() != tt.wantAmount {
				t.Errorf("expected amount %s, got %s", tt.wantAmount, ledger.lastPurchase.Amount)
			}
		})
	}
}

func TestLedgerHandler_CompletePurchase_InvalidUserID(t *testing.T) {
	h := NewLedgerHandler(&mockLedgerService{})

	r := gin.New()
	r.POST("/purchases/complete", h.CompletePurchase)
	w := serve(r, "POST", "/purchases/complete", jsonBody(dto.CompletePurchaseRequest{
		UserID:  "not-a-uuid",
		OrderID: "order-1",
		Amount:  "1.00",
	}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestLedgerHandler_CompletePurchase_Duplicate(t *testing.T) {
	h := NewLedgerHandler(&mockLedgerService{purchaseErr: service.ErrPurchaseDuplicate})

	r := gin.New()
	r.POST("/purchases/complete", h.CompletePurchase)
	w := serve(r, "POST", "/purchases/complete", jsonBody(dto.CompletePurchaseRequest{
		UserID:  testUserID,
		OrderID: "order-1",
		Amount:  "1.00",
	}))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != codePurchaseDup {
		t.Errorf("expected code %d, got %d", codePurchaseDup, resp.Code)
	}
}

func TestLedgerHandler_GetLeaderboard_Limit(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"默认", "", http.StatusOK, 0},
		{"指定", "?limit=3", http.StatusOK, 3},
		{"非法", "?limit=abc", http.StatusBadRequest, 0},
		{"负数", "?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &mockLedgerService{leaderboardResult: []dto.LeaderboardEntry{}}
			h := NewLedgerHandler(ledger)

			r := gin.New()
			r.GET("/leaderboard", h.GetLeaderboard)
			w := serve(r, "GET", "/leaderboard"+tt.query, nil)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus == http.StatusOK && ledger.lastLimit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, ledger.lastLimit)
			}
		})
	}
}

func TestLedgerHandler_GetMyLedger(t *testing.T) {
	h := NewLedgerHandler(&mockLedgerService{ledgerResult: &dto.LedgerResponse{
		UserID:       testUserID,
		Points:       7050,
		Tier:         "Lovers",
		NextTier:     "Loyal",
		PointsToNext: 7950,
	}})

	r := gin.New()
	r.GET("/me/ledger", withAuth(h.GetMyLedger))
	w := serve(r, "GET", "/me/ledger", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// NotificationHandler Tests
// ═══════════════════════════════════════════════════════════

func TestNotificationHandler_ListNotifications(t *testing.T) {
	notifications := &mockNotificationService{result: []dto.NotificationResponse{
		{ID: "n-2", Type: "tier_upgrade"},
		{ID: "n-1", Type: "new_event", Broadcast: true},
	}}
	h := NewNotificationHandler(notifications)

	r := gin.New()
	r.GET("/notifications", withAuth(h.ListNotifications))
	w := serve(r, "GET", "/notifications?limit=2", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if notifications.lastLimit != 2 {
		t.Errorf("expected limit 2, got %d", notifications.lastLimit)
	}
}

func TestNotificationHandler_ListNotifications_StoreUnavailable(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{err: service.ErrStoreUnavailable})

	r := gin.New()
	r.GET("/notifications", withAuth(h.ListNotifications))
	w := serve(r, "GET", "/notifications", nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_ExportLeaderboard_Success(t *testing.T) {
	h := NewExportHandler(&mockExportService{
		buf:      bytes.NewBufferString("xlsx-bytes"),
		filename: "leaderboard_20260101.xlsx",
	})

	r := gin.New()
	r.GET("/export/leaderboard", h.ExportLeaderboard)
	w := serve(r, "GET", "/export/leaderboard", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "leaderboard_20260101.xlsx") {
		t.Errorf("unexpected Content-Disposition: %s", cd)
	}
	if w.Body.String() != "xlsx-bytes" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestExportHandler_ExportLeaderboard_Empty(t *testing.T) {
	h := NewExportHandler(&mockExportService{err: service.ErrExportEmpty})

	r := gin.New()
	r.GET("/export/leaderboard", h.ExportLeaderboard)
	w := serve(r, "GET", "/export/leaderboard", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// WSHandler Tests
// ═══════════════════════════════════════════════════════════

func newTestHub() *notify.Hub {
	return notify.NewHub(&config.WebSocketConfig{
		SendBuffer:   4,
		WriteTimeout: time.Second,
	}, nil, zap.NewNop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("等待条件超时")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSHandler_Connect_ReceivesBroadcast(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()
	h := NewWSHandler(hub, nil, 0, zap.NewNop())

	r := gin.New()
	r.GET("/ws", withAuth(h.Connect))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial 失败: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.Len() == 1 })

	frame := []byte(`{"type":"leaderboard_update"}`)
	hub.Broadcast(frame)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage 失败: %v", err)
	}
	if string(got) != string(frame) {
		t.Errorf("expected %s, got %s", frame, got)
	}

	// 客户端断开后从注册表移除
	conn.Close()
	waitFor(t, func() bool { return hub.Len() == 0 })
}

func TestWSHandler_Connect_RejectsForeignOrigin(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()
	h := NewWSHandler(hub, []string{"https://shop.example.com"}, 0, zap.NewNop())

	r := gin.New()
	r.GET("/ws", withAuth(h.Connect))
	srv := httptest.NewServer(r)
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("非白名单来源应握手失败")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 handshake response, got %+v", resp)
	}
	if hub.Len() != 0 {
		t.Errorf("握手失败不应注册连接，当前 %d", hub.Len())
	}
}
