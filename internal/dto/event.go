package dto

// ── 活动模块 DTO ──

// CreateEventRequest 创建限量活动请求（管理员）
type CreateEventRequest struct {
	Name         string `json:"name"          binding:"required,min=1,max=200"`
	RequiredTier string `json:"required_tier" binding:"required"`
	StartTime    string `json:"start_time"    binding:"required"` // RFC3339
	EndTime      string `json:"end_time"      binding:"required"` // RFC3339
	Stock        *int   `json:"stock"         binding:"required"`
}

// EventResponse 活动信息响应
type EventResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RequiredTier string `json:"required_tier"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Stock        int    `json:"stock"`
	CreatedAt    string `json:"created_at"`
}

// ParticipationResponse 成功参与响应
type ParticipationResponse struct {
	EventID        string `json:"event_id"`
	PointsAwarded  int64  `json:"points_awarded"`
	RemainingStock int    `json:"remaining_stock"`

	// CreditPending 积分入账暂时失败、已进入补偿队列
	CreditPending bool   `json:"credit_pending,omitempty"`
	Points        *int64 `json:"points,omitempty"`
	Tier          string `json:"tier,omitempty"`
}
