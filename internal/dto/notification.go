package dto

// NotificationResponse 通知响应
type NotificationResponse struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	RelatedID *string `json:"related_id,omitempty"`
	Broadcast bool    `json:"broadcast"`
	CreatedAt string  `json:"created_at"`
}
