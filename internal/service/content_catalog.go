package service

import (
	"context"
	"errors"

	"github.com/blogpulse/internal/db"
	"gorm.io/gorm"
)

// ErrCatalogEmpty 表示目录尚未录入任何内容，此时不应按发布状态过滤。
var ErrCatalogEmpty = errors.New("content catalog is empty")

// ContentCatalog 提供当前已发布文章的标识集合，只用于查询侧过滤。
type ContentCatalog interface {
	ListPublishedContentIDs(ctx context.Context) (map[string]struct{}, error)
}

// PostCatalog 基于 posts 表实现 ContentCatalog，以 slug 作为内容标识。
type PostCatalog struct {
	db *gorm.DB
}

// NewPostCatalog 创建 PostCatalog。
func NewPostCatalog(gdb *gorm.DB) *PostCatalog {
	return &PostCatalog{db: gdb}
}

// ListPublishedContentIDs 返回所有已发布文章的 slug。
// posts 表没有任何记录时返回 ErrCatalogEmpty。
func (c *PostCatalog) ListPublishedContentIDs(ctx context.Context) (map[string]struct{}, error) {
	var slugs []string
	if err := c.db.WithContext(ctx).
		Model(&db.Post{}).
		Where("status = ?", db.PostStatusPublished).
		Pluck("slug", &slugs).Error; err != nil {
		return nil, err
	}

	if len(slugs) == 0 {
		var total int64
		if err := c.db.WithContext(ctx).Model(&db.Post{}).Count(&total).Error; err != nil {
			return nil, err
		}
		if total == 0 {
			return nil, ErrCatalogEmpty
		}
	}

	result := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		result[slug] = struct{}{}
	}
	return result, nil
}
