package models

// SettlementStat is a per-day counter flushed from Redis.
type SettlementStat struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Day    string `gorm:"type:char(10);not null;index:ux_settlement_stats_day_metric,unique,priority:1" json:"day"`
	Metric string `gorm:"type:varchar(50);not null;index:ux_settlement_stats_day_metric,unique,priority:2" json:"metric"`
	Count  int64  `gorm:"not null;default:0" json:"count"`
}
