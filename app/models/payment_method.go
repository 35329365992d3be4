package models

import "time"

// PaymentMethod is a way to settle a request. Only methods with
// SupportsOnline may start an online payment.
type PaymentMethod struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Code           string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Name           string    `gorm:"type:varchar(100);not null" json:"name"`
	SupportsOnline bool      `gorm:"default:false" json:"supports_online"`
	Active         bool      `gorm:"default:true;index" json:"active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CanSettleOnline reports whether the method can be used for a provider checkout.
func (m *PaymentMethod) CanSettleOnline() bool {
	return m != nil && m.Active && m.SupportsOnline
}
