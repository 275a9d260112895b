package proofs

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	xerrors "StarkProof/internal/errors"
)

// FileStore 从一个顶层为 JSON 对象的文件中读取证明，键为 secret，值为证明文档。
//
// 默认每次查询都重新读取文件；启用缓存后文件只在首次查询或 Refresh 时读取，
// 快照在替换后不再修改，因此并发读取无需加锁。
type FileStore struct {
	path     string
	cache    bool
	debounce time.Duration
	logger   *slog.Logger

	snapshot  atomic.Pointer[map[string]Document]
	refreshMu sync.Mutex
}

// FileStoreOption 定义 FileStore 的可选配置。
type FileStoreOption func(*FileStore)

// WithCache 控制是否缓存解析结果。
func WithCache(enabled bool) FileStoreOption {
	return func(s *FileStore) {
		s.cache = enabled
	}
}

// WithFileStoreLogger 指定文件存储使用的日志实例。
func WithFileStoreLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWatchDebounce 设置文件变更后触发刷新的防抖时间。
func WithWatchDebounce(d time.Duration) FileStoreOption {
	return func(s *FileStore) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// NewFileStore 创建文件证明存储，构造时不读取文件。
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "证明文件路径不能为空")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析证明文件路径失败")
	}
	store := &FileStore{
		path:     absPath,
		debounce: 100 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Path 返回证明文件的绝对路径。
func (s *FileStore) Path() string {
	return s.path
}

// Cached 表示是否启用了缓存。
func (s *FileStore) Cached() bool {
	return s.cache
}

// Load 读取并解析证明文件。
func (s *FileStore) Load(ctx context.Context) (map[string]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, xerrors.Wrap(CodeStoreUnavailable, err, MessageUnavailable, xerrors.WithMetadata("path", s.path))
	}
	// 非 UTF-8 内容按读取失败处理，文本读取阶段即被拒绝。
	if !utf8.Valid(data) {
		return nil, xerrors.Wrap(CodeStoreUnavailable, errInvalidUTF8, MessageUnavailable, xerrors.WithMetadata("path", s.path))
	}
	entries, err := ParseStore(data)
	if err != nil {
		return nil, xerrors.Wrap(CodeStoreCorrupt, stdErrors.Unwrap(err), MessageCorrupt, xerrors.WithMetadata("path", s.path))
	}
	return entries, nil
}

// Lookup 按 secret 精确匹配证明文档。返回的文档可能与缓存共享，调用方不得修改。
func (s *FileStore) Lookup(ctx context.Context, secret string) (Document, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}
	doc, ok := entries[secret]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

// Refresh 重新读取文件并原子替换快照；失败时保留旧快照。
func (s *FileStore) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx)
}

// Len 返回当前快照中的条目数量。
func (s *FileStore) Len() int {
	snap := s.snapshot.Load()
	if snap == nil {
		return 0
	}
	return len(*snap)
}

func (s *FileStore) refreshLocked(ctx context.Context) error {
	entries, err := s.Load(ctx)
	if err != nil {
		return err
	}
	s.snapshot.Store(&entries)
	return nil
}

func (s *FileStore) entries(ctx context.Context) (map[string]Document, error) {
	if !s.cache {
		return s.Load(ctx)
	}
	if snap := s.snapshot.Load(); snap != nil {
		return *snap, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	// 可能已被并发的首次查询加载。
	if snap := s.snapshot.Load(); snap != nil {
		return *snap, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return *s.snapshot.Load(), nil
}

// Watch 监听证明文件所在目录，文件变化时刷新缓存，直到 ctx 结束。
func (s *FileStore) Watch(ctx context.Context) error {
	if !s.cache {
		return xerrors.New(xerrors.CodeInvalidArgument, "未启用缓存时无需监听证明文件")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建文件监听器失败")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "监听证明文件目录失败")
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(s.debounce, func() {
				if err := s.Refresh(ctx); err != nil {
					s.logger.Warn("刷新证明缓存失败，继续使用旧快照",
						slog.String("path", s.path),
						slog.String("error", err.Error()),
					)
					return
				}
				s.logger.Info("证明缓存已刷新", slog.String("path", s.path), slog.Int("entries", s.Len()))
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("证明文件监听异常", slog.String("error", err.Error()))
		}
	}
}

var errInvalidUTF8 = stdErrors.New("proof file is not valid UTF-8")

// ParseStore 解析证明数据，重复的键以最后一次出现为准。
// 只有语法错误视为损坏；顶层不是对象的合法 JSON 不含任何键，所有查询均未找到。
func ParseStore(data []byte) (map[string]Document, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(data) {
			return nil, xerrors.Wrap(CodeStoreCorrupt, stdErrors.New("invalid JSON"), MessageCorrupt)
		}
		return map[string]Document{}, nil
	}
	var entries map[string]Document
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, xerrors.Wrap(CodeStoreCorrupt, err, MessageCorrupt)
	}
	return entries, nil
}

var _ Provider = (*FileStore)(nil)
