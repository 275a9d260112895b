package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"time"

	xerrors "StarkProof/internal/errors"
	"StarkProof/internal/proofs"
)

const (
	messageUnavailable = "Failed to query the proof store"
	messageCorrupt     = "Stored proof is not valid JSON"
)

// ErrUnsupportedDialect 表示配置了未知的 SQL 方言。
var ErrUnsupportedDialect = xerrors.New(xerrors.CodeInvalidArgument, "不支持的 SQL 方言")

// ProofRepository 使用 proofs 表保存证明文档。
type ProofRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open 建立连接并执行内置迁移。
func Open(ctx context.Context, cfg Config) (*ProofRepository, error) {
	if cfg.Dialect != DialectMySQL && cfg.Dialect != DialectSQLite {
		return nil, ErrUnsupportedDialect
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(proofs.CodeStoreUnavailable, err, "连接证明数据库失败")
	}
	repo := &ProofRepository{db: db, dialect: cfg.Dialect, now: time.Now}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化证明表失败")
	}
	return repo, nil
}

// Lookup 实现 proofs.Provider。
func (r *ProofRepository) Lookup(ctx context.Context, secret string) (proofs.Document, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT document FROM proofs WHERE secret = ?`, secret).Scan(&raw)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, proofs.ErrNotFound
		}
		return nil, xerrors.Wrap(proofs.CodeStoreUnavailable, err, messageUnavailable)
	}
	if !json.Valid(raw) {
		return nil, xerrors.New(proofs.CodeStoreCorrupt, messageCorrupt, xerrors.WithMetadata("secret", secret))
	}
	return proofs.Document(raw), nil
}

// Upsert 在一个事务内写入或覆盖证明文档，返回写入条数。
func (r *ProofRepository) Upsert(ctx context.Context, entries map[string]proofs.Document) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, xerrors.Wrap(proofs.CodeStoreUnavailable, err, "开启写入事务失败")
	}
	stmt, err := tx.PrepareContext(ctx, r.upsertSQL())
	if err != nil {
		tx.Rollback()
		return 0, xerrors.Wrap(proofs.CodeStoreUnavailable, err, "准备写入语句失败")
	}
	defer stmt.Close()

	ts := r.now().Unix()
	for secret, doc := range entries {
		compact, err := proofs.Compact(doc)
		if err != nil {
			tx.Rollback()
			return 0, xerrors.Wrap(proofs.CodeStoreCorrupt, err, fmt.Sprintf("证明 %q 不是合法 JSON", secret))
		}
		if _, err := stmt.ExecContext(ctx, secret, string(compact), ts, ts); err != nil {
			tx.Rollback()
			return 0, xerrors.Wrap(proofs.CodeStoreUnavailable, err, "写入证明失败")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, xerrors.Wrap(proofs.CodeStoreUnavailable, err, "提交写入事务失败")
	}
	return len(entries), nil
}

// Count 返回证明条目数量。
func (r *ProofRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proofs`).Scan(&n); err != nil {
		return 0, xerrors.Wrap(proofs.CodeStoreUnavailable, err, messageUnavailable)
	}
	return n, nil
}

// Close 关闭数据库连接。
func (r *ProofRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *ProofRepository) upsertSQL() string {
	if r.dialect == DialectMySQL {
		return `INSERT INTO proofs (secret, document, created_at, updated_at) VALUES (?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE document = VALUES(document), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO proofs (secret, document, created_at, updated_at) VALUES (?, ?, ?, ?)
    ON CONFLICT(secret) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`
}

var _ proofs.Provider = (*ProofRepository)(nil)
