package model

import "time"

// 积分来源
const (
	CreditReasonParticipation = "participation"
	CreditReasonPurchase      = "purchase"
)

// PointCredit 积分入账流水 — 对应 point_credits
// CreditID 为幂等键：同一笔入账无论重试多少次只生效一次
type PointCredit struct {
	CreditID  string    `gorm:"type:uuid;primaryKey"               json:"credit_id"`
	UserID    string    `gorm:"type:uuid;not null"                 json:"user_id"`
	Amount    int64     `gorm:"not null"                           json:"amount"`
	Reason    string    `gorm:"type:varchar(20);not null"          json:"reason"`
	RefID     string    `gorm:"type:varchar(100);not null"         json:"ref_id"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (PointCredit) TableName() string { return "point_credits" }
