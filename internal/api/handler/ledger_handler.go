package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"echelon/backend/internal/dto"
	"echelon/backend/internal/service"
	"echelon/backend/pkg/response"
)

// LedgerHandler 积分账本 HTTP 处理器
type LedgerHandler struct {
	ledgerSvc service.LedgerService
}

// NewLedgerHandler 创建 LedgerHandler
func NewLedgerHandler(ledgerSvc service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc}
}

// GetMyLedger 当前用户积分与等级
// GET /api/v1/me/ledger
func (h *LedgerHandler) GetMyLedger(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	ledger, err := h.ledgerSvc.GetLedger(c.Request.Context(), userID)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.OK(c, ledger)
}

// GetLeaderboard 积分排行榜
// GET /api/v1/leaderboard?limit=10
func (h *LedgerHandler) GetLeaderboard(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		response.BadRequest(c, 10001, "limit 必须为非负整数")
		return
	}

	entries, err := h.ledgerSvc.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.OKList(c, entries, len(entries))
}

// CompletePurchase 外部电商结账完成回调
// POST /api/v1/purchases/complete
func (h *LedgerHandler) CompletePurchase(c *gin.Context) {
	var req dto.CompletePurchaseRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerSvc.CompletePurchase(c.Request.Context(), &req)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.OK(c, result)
}

// parseLimit 空串视为 0（由 Service 取默认值）
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
