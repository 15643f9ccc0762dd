package model

import "time"

// Event 限量活动 — 对应 events
// Stock 只会通过成功参与递减；售罄与过期均为终态
type Event struct {
	EventID      string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"event_id"`
	Name         string    `gorm:"type:varchar(200);not null"                     json:"name"`
	RequiredTier string    `gorm:"type:varchar(20);not null"                      json:"required_tier"`
	StartTime    time.Time `gorm:"not null"                                       json:"start_time"`
	EndTime      time.Time `gorm:"not null"                                       json:"end_time"`
	Stock        int       `gorm:"not null"                                       json:"stock"`
	CreatedBy    *string   `gorm:"type:uuid"                                      json:"created_by,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Event) TableName() string { return "events" }

// Expired 结束时间不晚于 now 即视为过期（结束时间为开区间）
func (e *Event) Expired(now time.Time) bool {
	return !e.EndTime.After(now)
}

// SoldOut 是否售罄
func (e *Event) SoldOut() bool {
	return e.Stock <= 0
}
