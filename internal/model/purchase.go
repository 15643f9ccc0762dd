package model

import "time"

// Purchase 外部电商结账完成记录 — 对应 purchases
type Purchase struct {
	PurchaseID    string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"purchase_id"`
	OrderID       string    `gorm:"type:varchar(100);not null;uniqueIndex"         json:"order_id"`
	UserID        string    `gorm:"type:uuid;not null"                             json:"user_id"`
	Amount        string    `gorm:"type:numeric(12,2);not null"                    json:"amount"`
	PointsAwarded int64     `gorm:"not null;default:0"                             json:"points_awarded"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (Purchase) TableName() string { return "purchases" }
