package db

import "time"

// PostStat 汇总文章维度的浏览数据，由聚合任务整行覆盖写入。
type PostStat struct {
	ContentID          string     `gorm:"primaryKey;size:255" json:"contentId"`
	ViewCount          int64      `gorm:"not null" json:"viewCount"`
	UniqueVisitors     int64      `gorm:"not null" json:"uniqueVisitors"`
	AvgReadTimeSeconds int64      `gorm:"not null" json:"avgReadTimeSeconds"`
	LastViewedAt       *time.Time `json:"lastViewedAt,omitempty"`
	// UpdatedAt 由聚合任务显式赋值，关闭 gorm 的自动时间戳。
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;not null" json:"updatedAt"`
}

// TableName 指定自定义表名，避免自动复数化导致的歧义。
func (PostStat) TableName() string {
	return "post_stats"
}
