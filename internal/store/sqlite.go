package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"

	"orderflow/internal/config"
)

// Store 持有历史收盘价缓存使用的 SQLite 连接池。
type Store struct {
	db       *sql.DB
	inMemory bool
}

type pragma struct {
	stmt     string
	desc     string
	fileOnly bool
}

var pragmas = []pragma{
	{stmt: "PRAGMA journal_mode=WAL;", desc: "WAL 模式", fileOnly: true},
	{stmt: "PRAGMA synchronous=NORMAL;", desc: "同步级别"},
}

// NewSQLite 打开 SQLite 缓存库。内存库只保留一个连接，否则各连接看到的是不同的库。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	if cfg.InMemory {
		cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime = 1, 1, 0
	} else if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 缓存库失败: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	for _, p := range pragmas {
		if p.fileOnly && cfg.InMemory {
			continue
		}
		if _, err := db.Exec(p.stmt); err != nil {
			return nil, multierr.Append(fmt.Errorf("设置 SQLite %s失败: %w", p.desc, err), db.Close())
		}
	}

	return &Store{db: db, inMemory: cfg.InMemory}, nil
}

func dsn(cfg config.DatabaseConfig) string {
	target := cfg.Path
	if cfg.InMemory {
		target = ":memory:"
	}
	return target + "?_busy_timeout=5000&_foreign_keys=on"
}

// DB 返回底层连接池。
func (s *Store) DB() *sql.DB {
	return s.db
}

// InMemory 报告缓存是否只存在于进程内。
func (s *Store) InMemory() bool {
	return s.inMemory
}

// Close 关闭连接池，可重复调用。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建缓存目录 %q 失败: %w", dir, err)
	}
	return nil
}
