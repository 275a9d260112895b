package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"StarkProof/internal/observability/metrics"
	"StarkProof/internal/proofs"
)

// ProofGetter 抽象证明服务，*proofs.Service 满足该接口。
type ProofGetter interface {
	GetProof(ctx context.Context, secret string) proofs.Result
}

// Server 负责暴露证明获取接口。
type Server struct {
	addr          string
	proofs        ProofGetter
	encoding      Encoding
	statusMapping StatusMapping
	origins       []string
	metrics       *metrics.Metrics
	exposeMetrics bool
	logger        *slog.Logger
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithEncoding 设置成功响应体的编码方式。
func WithEncoding(enc Encoding) Option {
	return func(s *Server) {
		if enc != "" {
			s.encoding = enc
		}
	}
}

// WithStatusMapping 设置失败时的状态码映射。
func WithStatusMapping(mapping StatusMapping) Option {
	return func(s *Server) {
		if mapping != "" {
			s.statusMapping = mapping
		}
	}
}

// WithAllowedOrigins 设置允许跨域访问的来源，"*" 表示任意来源。
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithMetrics 启用请求指标，expose 为 true 时同时挂载 /metrics。
func WithMetrics(m *metrics.Metrics, expose bool) Option {
	return func(s *Server) {
		s.metrics = m
		s.exposeMetrics = expose && m != nil
	}
}

// WithLogger 指定请求日志使用的实例。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, svc ProofGetter, opts ...Option) *Server {
	s := &Server{
		addr:          addr,
		proofs:        svc,
		encoding:      EncodingString,
		statusMapping: StatusLegacy,
		origins:       []string{"*"},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /stark-proof/{secret}", s.instrument("stark_proof", http.HandlerFunc(s.handleProof)))
	mux.Handle("GET /stark-proof/{$}", s.instrument("stark_proof", http.HandlerFunc(s.handleMissingSecret)))
	mux.Handle("GET /healthz", s.instrument("healthz", http.HandlerFunc(handleHealth)))
	if s.exposeMetrics {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return withCORS(s.origins, mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("证明服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) instrument(name string, next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return s.metrics.Middleware(name, next)
}

// handleProof 处理按 secret 获取证明的请求。
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	if s.proofs == nil {
		http.Error(w, "证明服务未初始化", http.StatusServiceUnavailable)
		return
	}
	secret := r.PathValue("secret")
	s.logger.Info("收到证明请求", slog.String("secret", secret))

	result := s.proofs.GetProof(r.Context(), secret)
	w.Header().Set("X-Request-ID", result.RequestID)
	if !result.OK() {
		writeFailure(w, s.statusMapping, result)
		return
	}

	body, err := encodeDocument(s.encoding, result.Document)
	if err != nil {
		result.Err = proofs.ErrStoreCorrupt
		writeFailure(w, s.statusMapping, result)
		return
	}

	etag := `"` + result.Digest + `"`
	w.Header().Set("X-Proof-Digest", result.Digest)
	w.Header().Set("ETag", etag)
	if matchesETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleMissingSecret(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "缺少 secret", http.StatusBadRequest)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
