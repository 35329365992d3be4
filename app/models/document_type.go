package models

import "time"

// DocumentType is a requestable document. Regulated types carry a computed
// community tax instead of a flat schedule fee.
type DocumentType struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"code" validate:"required,max=50"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	Regulated bool      `gorm:"default:false" json:"regulated"`
	Active    bool      `gorm:"default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
