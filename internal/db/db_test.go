package db

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestInitCreatesTablesAndParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pulse.db")

	if err := Init(Options{Driver: "sqlite", Path: path}); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	})

	for _, model := range []interface{}{&User{}, &Post{}, &PageView{}, &PostStat{}} {
		if !DB.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
}

func TestOpenPostgresRequiresURL(t *testing.T) {
	if _, err := Open(Options{Driver: "postgres"}); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	gdb, err := Open(Options{Path: fmt.Sprintf("file:ensure-user-%d?mode=memory&cache=shared", time.Now().UnixNano())})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if err := EnsureUser(gdb, " admin ", "secret"); err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if err := EnsureUser(gdb, "admin", "other"); err != nil {
		t.Fatalf("second EnsureUser returned error: %v", err)
	}
	if err := EnsureUser(gdb, "", "ignored"); err != nil {
		t.Fatalf("EnsureUser with empty name returned error: %v", err)
	}

	var users []User
	if err := gdb.Find(&users).Error; err != nil {
		t.Fatalf("failed to list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(users[0].Password), []byte("secret")); err != nil {
		t.Fatalf("expected stored password to match the first value: %v", err)
	}
}
