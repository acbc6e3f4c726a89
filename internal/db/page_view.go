package db

import "time"

// PageView 记录一次文章浏览事件，只追加不删除。
type PageView struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ContentID       string    `gorm:"size:255;not null;index:idx_page_views_pair,priority:1" json:"contentId"`
	VisitorID       string    `gorm:"size:255;not null;index:idx_page_views_pair,priority:2" json:"visitorId"`
	IPHash          *string   `gorm:"size:64" json:"ipHash,omitempty"`
	UserAgent       *string   `json:"userAgent,omitempty"`
	Referer         *string   `json:"referer,omitempty"`
	Timestamp       time.Time `gorm:"not null;index;index:idx_page_views_pair,priority:3" json:"timestamp"`
	ReadTimeSeconds *int      `json:"readTimeSeconds,omitempty"`
}

// TableName 指定自定义表名。
func (PageView) TableName() string {
	return "page_views"
}
