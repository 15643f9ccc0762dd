package model

// User 用户积分账本 — 对应 users
// Tier 由积分推导，只能与 Points 在同一事务中写入
type User struct {
	UserID   string `gorm:"type:uuid;primaryKey"                      json:"user_id"`
	Username string `gorm:"type:varchar(100);not null;default:''"     json:"username"`
	Points   int64  `gorm:"not null;default:0"                        json:"points"`
	Tier     string `gorm:"type:varchar(20);not null;default:'Solace'" json:"tier"`
	BaseModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// LedgerBalance 一次积分变动后的账本快照
type LedgerBalance struct {
	UserID       string
	Points       int64
	Tier         string
	PreviousTier string
	Applied      bool // false 表示该 credit_id 已入账过，本次为幂等重放
}

// TierChanged 本次入账是否导致等级变化
func (b *LedgerBalance) TierChanged() bool {
	return b.Applied && b.PreviousTier != "" && b.PreviousTier != b.Tier
}
