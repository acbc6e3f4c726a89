package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// Options 描述数据库连接参数。
type Options struct {
	// Driver 取值 sqlite 或 postgres，其余值按 sqlite 处理。
	Driver string
	Path   string
	URL    string
}

// Init 初始化数据库连接并执行自动迁移。
// sqlite 模式下 Path 为空时回退到默认值 blogpulse.db。
func Init(opts Options) error {
	gdb, err := Open(opts)
	if err != nil {
		return err
	}
	if err := Migrate(gdb); err != nil {
		return err
	}
	DB = gdb
	return nil
}

// Open 按驱动建立 gorm 连接，不做迁移。
func Open(opts Options) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if strings.EqualFold(strings.TrimSpace(opts.Driver), "postgres") {
		dsn := strings.TrimSpace(opts.URL)
		if dsn == "" {
			return nil, errors.New("DATABASE_URL is required for postgres")
		}
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = "blogpulse.db"
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, err
	}

	// sqlite 只允许单写者，统一走一个连接避免 "database is locked"。
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

// Migrate 为核心模型创建表与索引。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&User{},
		&Post{},
		&PageView{},
		&PostStat{},
	)
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
