package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/service"
	"gorm.io/gorm"
)

// seedOptions 控制测试数据的规模。
type seedOptions struct {
	Days     int
	Visitors int
	Seed     uint64
}

var demoPosts = []db.Post{
	{Slug: "hello-world", Title: "你好，世界", Status: db.PostStatusPublished},
	{Slug: "go-concurrency-notes", Title: "Go 并发笔记", Status: db.PostStatusPublished},
	{Slug: "gorm-upsert", Title: "GORM 中的 upsert", Status: db.PostStatusPublished},
	{Slug: "sqlite-in-production", Title: "生产环境中的 SQLite", Status: db.PostStatusPublished},
	{Slug: "draft-ideas", Title: "草稿：待整理的想法", Status: db.PostStatusDraft},
}

var demoReferers = []string{"", "", "https://www.google.com/", "https://news.ycombinator.com/", "https://x.com/", "https://github.com/"}

// 测试数据生成器
func main() {
	cfg := config.Load()
	if err := db.Init(db.Options{Driver: cfg.DatabaseDriver, Path: cfg.DatabasePath, URL: cfg.DatabaseURL}); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	if err := db.EnsureUser(db.DB, "admin", "admin123"); err != nil {
		log.Fatal("创建管理员失败:", err)
	}

	views, err := seedDemoData(context.Background(), db.DB, seedOptions{Days: 30, Visitors: 40, Seed: 42}, time.Now().UTC())
	if err != nil {
		log.Fatal("生成浏览数据失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Println("用户: admin (密码: admin123)")
	fmt.Printf("文章: %d 篇，浏览事件: %d 条\n", len(demoPosts), views)
}

// seedDemoData 写入示例文章，按天回放浏览与离开页面事件，最后执行一次聚合。
// 浏览事件经过 AnalyticsService，因此同样受防刷窗口约束。
func seedDemoData(ctx context.Context, gdb *gorm.DB, opts seedOptions, now time.Time) (int, error) {
	for _, post := range demoPosts {
		post := post
		if err := gdb.Where(db.Post{Slug: post.Slug}).FirstOrCreate(&post).Error; err != nil {
			return 0, err
		}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	analytics := service.NewAnalyticsService(gdb)
	start := now.AddDate(0, 0, -opts.Days)

	recorded := 0
	for day := 0; day < opts.Days; day++ {
		dayStart := start.AddDate(0, 0, day)
		minutes := make([]int, 5+rng.IntN(20))
		for i := range minutes {
			minutes[i] = rng.IntN(24 * 60)
		}
		slices.Sort(minutes)

		for _, minute := range minutes {
			at := dayStart.Add(time.Duration(minute) * time.Minute)
			post := demoPosts[rng.IntN(len(demoPosts))]
			in := service.ViewInput{
				ContentID: post.Slug,
				VisitorID: fmt.Sprintf("demo-visitor-%03d", rng.IntN(opts.Visitors)),
				IP:        fmt.Sprintf("198.51.100.%d", rng.IntN(250)+1),
				UserAgent: "Mozilla/5.0 (seed)",
				Referer:   demoReferers[rng.IntN(len(demoReferers))],
			}

			ack, err := analytics.RecordView(ctx, in, at)
			if err != nil {
				return recorded, err
			}
			if ack != service.AckRecorded {
				continue
			}
			recorded++

			if rng.IntN(3) > 0 {
				readTime := 10 + rng.IntN(600)
				in.ReadTimeSeconds = &readTime
				if _, err := analytics.RecordView(ctx, in, at.Add(time.Duration(readTime)*time.Second)); err != nil {
					return recorded, err
				}
			}
		}
	}

	if _, err := service.NewAggregationService(gdb).Aggregate(ctx, now); err != nil {
		return recorded, err
	}
	return recorded, nil
}
