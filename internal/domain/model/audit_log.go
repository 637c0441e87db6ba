package model

import "time"

type AuditAction string

const (
	//購入ステータスをスタッフが進めた操作
	AuditActionUpdatePurchaseStatus AuditAction = "UPDATE_PURCHASE_STATUS"
)

type AuditResourceType string

const (
	AuditResourcePurchase AuditResourceType = "purchase"
	AuditResourceShipping AuditResourceType = "shipping"
)

// スタッフ操作の監査ログ。
// 「誰が」「どの購入を」「どのステータスからどこへ」動かしたかを残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したスタッフ（ADMIN/COURIER）のID
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`
	ActorRole   Role  `gorm:"type:varchar(20);not null" json:"actor_role"`

	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   int64             `gorm:"not null;index" json:"resource_id"`

	//JSON文字列
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
