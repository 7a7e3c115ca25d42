package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"orderflow/internal/pricing"
)

// ErrCacheMiss 表示缓存中没有对应键的收盘价。
var ErrCacheMiss = errors.New("store: closing prices not cached")

const closesSchema = `
CREATE TABLE IF NOT EXISTS price_closes (
	source    TEXT    NOT NULL,
	symbol    TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	close     REAL    NOT NULL,
	PRIMARY KEY (source, symbol, timeframe, ts)
);`

// CacheKey 标识一组收盘价。
type CacheKey struct {
	Source    string
	Symbol    string
	Timeframe string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Source, k.Symbol, k.Timeframe)
}

// CloseCache 持久化历史收盘价，供离线或拉取失败时校准使用。
type CloseCache struct {
	db *sql.DB
}

// NewCloseCache 创建缓存并确保表结构存在。
func NewCloseCache(ctx context.Context, s *Store) (*CloseCache, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: 数据库未初始化")
	}
	if _, err := s.db.ExecContext(ctx, closesSchema); err != nil {
		return nil, fmt.Errorf("store: 创建 price_closes 表失败: %w", err)
	}
	return &CloseCache{db: s.db}, nil
}

// Save 以 upsert 方式写入序列。
func (c *CloseCache) Save(ctx context.Context, key CacheKey, series pricing.Series) (err error) {
	if len(series) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO price_closes (source, symbol, timeframe, ts, close)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (source, symbol, timeframe, ts) DO UPDATE SET close = excluded.close`)
	if err != nil {
		return fmt.Errorf("store: 预编译写入语句失败: %w", err)
	}
	defer func() {
		err = multierr.Append(err, stmt.Close())
	}()

	for _, p := range series {
		if _, err = stmt.ExecContext(ctx, key.Source, key.Symbol, key.Timeframe, p.Time.UnixMilli(), p.Close); err != nil {
			return fmt.Errorf("store: 写入收盘价 %s@%s 失败: %w", key, p.Time.Format(time.RFC3339), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: 提交事务失败: %w", err)
	}
	return nil
}

// Load 返回最近 limit 条收盘价，按时间升序；limit<=0 表示全部。
func (c *CloseCache) Load(ctx context.Context, key CacheKey, limit int) (series pricing.Series, err error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := c.db.QueryContext(ctx, `
SELECT ts, close FROM (
	SELECT ts, close FROM price_closes
	WHERE source = ? AND symbol = ? AND timeframe = ?
	ORDER BY ts DESC
	LIMIT ?
) ORDER BY ts ASC`, key.Source, key.Symbol, key.Timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("store: 查询收盘价失败: %w", err)
	}
	defer func() {
		err = multierr.Append(err, rows.Close())
	}()

	for rows.Next() {
		var (
			ts    int64
			price float64
		)
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("store: 解析收盘价失败: %w", err)
		}
		series = append(series, pricing.Point{Time: time.UnixMilli(ts).UTC(), Close: price})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 遍历收盘价失败: %w", err)
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	return series, nil
}
