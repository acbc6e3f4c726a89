package db

import "gorm.io/gorm"

const (
	// PostStatusPublished 表示文章已发布。
	PostStatusPublished = "published"
	// PostStatusDraft 表示文章仍为草稿。
	PostStatusDraft = "draft"
)

// Post 定义了文章目录模型，统计模块只关心 slug 与发布状态。
type Post struct {
	gorm.Model
	Slug   string `gorm:"size:255;uniqueIndex;not null"`
	Title  string
	Status string `gorm:"size:32;index;default:draft"`
}
