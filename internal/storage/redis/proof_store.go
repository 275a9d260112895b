package redis

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "StarkProof/internal/errors"
	"StarkProof/internal/proofs"
)

const (
	messageUnavailable = "Failed to reach the proof store"
	messageCorrupt     = "Stored proof is not valid JSON"
)

// Config 描述 Redis 证明存储的连接参数。
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// Client 是 ProofStore 依赖的 Redis 命令子集，*redis.Client 满足该接口。
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// ProofStore 使用 Redis 字符串键保存证明文档。
type ProofStore struct {
	client Client
	prefix string
}

// NewProofStore 连接 Redis 并返回证明存储实例。
func NewProofStore(ctx context.Context, cfg Config) (*ProofStore, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(CodeOf(err), err, "连接 Redis 失败")
	}
	return NewProofStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewProofStoreWithClient 使用已有客户端构造证明存储。
func NewProofStoreWithClient(client Client, prefix string) *ProofStore {
	return &ProofStore{client: client, prefix: prefix}
}

// Key 返回 secret 对应的 Redis 键。
func (s *ProofStore) Key(secret string) string {
	return s.prefix + secret
}

// Lookup 实现 proofs.Provider。
func (s *ProofStore) Lookup(ctx context.Context, secret string) (proofs.Document, error) {
	raw, err := s.client.Get(ctx, s.Key(secret)).Bytes()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return nil, proofs.ErrNotFound
		}
		return nil, xerrors.Wrap(CodeOf(err), err, messageUnavailable)
	}
	if !json.Valid(raw) {
		return nil, xerrors.New(proofs.CodeStoreCorrupt, messageCorrupt, xerrors.WithMetadata("key", s.Key(secret)))
	}
	return proofs.Document(raw), nil
}

// Import 通过 pipeline 批量写入证明文档，已存在的键会被覆盖。
func (s *ProofStore) Import(ctx context.Context, entries map[string]proofs.Document) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for secret, doc := range entries {
			compact, err := proofs.Compact(doc)
			if err != nil {
				return xerrors.Wrap(proofs.CodeStoreCorrupt, err, fmt.Sprintf("证明 %q 不是合法 JSON", secret))
			}
			pipe.Set(ctx, s.Key(secret), compact, 0)
		}
		return nil
	})
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return 0, err
		}
		return 0, xerrors.Wrap(proofs.CodeStoreUnavailable, err, "Redis 批量写入证明失败")
	}
	return len(entries), nil
}

// Close 关闭 Redis 连接。
func (s *ProofStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// CodeOf 将 Redis 客户端错误映射为证明存储错误码。
func CodeOf(err error) xerrors.Code {
	if err == nil {
		return ""
	}
	if stdErrors.Is(err, redis.Nil) {
		return proofs.CodeProofNotFound
	}
	return proofs.CodeStoreUnavailable
}

var _ proofs.Provider = (*ProofStore)(nil)
