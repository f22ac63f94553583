package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-spm/internal/config"
	"github.com/example/go-spm/internal/spm"
	"github.com/example/go-spm/internal/tokenizer"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Service is the tokenizer surface the handler needs.
type Service interface {
	Encode(ctx context.Context, text string) ([]int32, error)
	Decode(ctx context.Context, ids []int32) (string, error)
	EOSID() int32
	BOSID() int32
	VocabSize() int32
}

// BatchEncoder is implemented by services that encode many texts at once.
type BatchEncoder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]int32, error)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	maxIDs         int
	workers        int
	requestTimeout time.Duration
	engine         tokenizer.EngineInfo
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   64 << 10,
		maxIDs:         16384,
		workers:        4,
		requestTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /encode.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxIDs sets the maximum number of ids accepted by POST /decode.
func WithMaxIDs(n int) Option {
	return func(o *options) { o.maxIDs = n }
}

// WithWorkers sets the maximum number of concurrent tokenization calls.
// Zero disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout bounds how long a request waits for a free engine.
// A zero or negative d leaves requests bounded only by the client.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithEngineInfo sets the engine description reported by GET /info.
func WithEngineInfo(info tokenizer.EngineInfo) Option {
	return func(o *options) { o.engine = info }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	svc  Service
	opts options
	sem  chan struct{}
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /info, POST /encode
// and POST /decode.
func NewHandler(svc Service, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		svc:  svc,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/info", h.handleInfo)
	mux.HandleFunc("/encode", h.handleEncode)
	mux.HandleFunc("/decode", h.handleDecode)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	EOSID     int32                `json:"eos_id"`
	BOSID     int32                `json:"bos_id"`
	VocabSize int32                `json:"vocab_size"`
	Engine    tokenizer.EngineInfo `json:"engine"`
}

func (h *handler) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		EOSID:     h.svc.EOSID(),
		BOSID:     h.svc.BOSID(),
		VocabSize: h.svc.VocabSize(),
		Engine:    h.opts.engine,
	})
}

type encodeRequest struct {
	Text  string   `json:"text"`
	Texts []string `json:"texts"`
}

type encodeResponse struct {
	IDs   []int32   `json:"ids,omitempty"`
	Batch [][]int32 `json:"batch,omitempty"`
}

type decodeRequest struct {
	IDs []int32 `json:"ids"`
}

type decodeResponse struct {
	Text string `json:"text"`
}

func (h *handler) handleEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req encodeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if req.Text == "" && len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	total := len(req.Text)
	for _, t := range req.Texts {
		total += len(t)
	}

	if total > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := h.requestContext(r)
	defer cancel()

	start := time.Now()

	var (
		resp   encodeResponse
		tokens int
		err    error
	)

	if len(req.Texts) > 0 {
		resp.Batch, err = h.encodeBatch(ctx, req.Texts)
		for _, ids := range resp.Batch {
			tokens += len(ids)
		}
	} else {
		resp.IDs, err = h.svc.Encode(ctx, req.Text)
		tokens = len(resp.IDs)
	}

	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.fail(w, r, "encode", err, slog.Int("text_len", total), slog.Int64("duration_ms", durationMS))
		return
	}

	if resp.IDs == nil && resp.Batch == nil {
		resp.IDs = []int32{}
	}

	h.log.InfoContext(r.Context(), "encode complete",
		slog.Int("text_len", total),
		slog.Int("tokens", tokens),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) encodeBatch(ctx context.Context, texts []string) ([][]int32, error) {
	if be, ok := h.svc.(BatchEncoder); ok {
		return be.EncodeBatch(ctx, texts)
	}

	out := make([][]int32, len(texts))
	for i, t := range texts {
		ids, err := h.svc.Encode(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("texts[%d]: %w", i, err)
		}

		out[i] = ids
	}

	return out, nil
}

func (h *handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req decodeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if len(req.IDs) > h.opts.maxIDs {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("ids exceed maximum count of %d", h.opts.maxIDs))
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := h.requestContext(r)
	defer cancel()

	start := time.Now()
	text, err := h.svc.Decode(ctx, req.IDs)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.fail(w, r, "decode", err, slog.Int("tokens", len(req.IDs)), slog.Int64("duration_ms", durationMS))
		return
	}

	h.log.InfoContext(r.Context(), "decode complete",
		slog.Int("tokens", len(req.IDs)),
		slog.Int("text_len", len(text)),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, decodeResponse{Text: text})
}

func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}

	// Leave headroom for JSON escaping and the ids array.
	limit := int64(h.opts.maxTextBytes)*6 + int64(h.opts.maxIDs)*12 + 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}

		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}

	return true
}

// requestContext applies the request timeout; zero or less means none.
func (h *handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.opts.requestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}

	return context.WithTimeout(r.Context(), h.opts.requestTimeout)
}

// acquire takes a worker slot, honouring request cancellation while waiting.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, op string, err error, attrs ...slog.Attr) {
	status := statusFor(err)

	args := make([]any, 0, len(attrs)+1)
	for _, a := range attrs {
		args = append(args, a)
	}
	args = append(args, slog.String("error", err.Error()))

	if status == http.StatusGatewayTimeout {
		h.log.WarnContext(r.Context(), op+" timed out", args...)
		writeError(w, status, op+" timed out waiting for engine")
		return
	}

	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), op+" failed", args...)
	} else {
		h.log.WarnContext(r.Context(), op+" rejected", args...)
	}

	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, spm.ErrInteriorNUL), errors.Is(err, spm.ErrIDOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, spm.ErrStatus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, spm.ErrClosed), errors.Is(err, spm.ErrNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server wires handler into net/http with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	tok             tokenizer.Tokenizer
	info            tokenizer.EngineInfo
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a Server. When tok is nil, Start opens one from cfg and closes
// it on return.
func New(cfg config.Config, tok tokenizer.Tokenizer, info tokenizer.EngineInfo) *Server {
	shutdown := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}

	return &Server{
		cfg:             cfg,
		tok:             tok,
		info:            info,
		logger:          slog.Default(),
		shutdownTimeout: shutdown,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the logger used by the server and its handler.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

func (s *Server) Start(ctx context.Context) error {
	tok, info := s.tok, s.info
	if tok == nil {
		var err error
		tok, info, err = tokenizer.Open(ctx, s.cfg, s.logger)
		if err != nil {
			return fmt.Errorf("open tokenizer: %w", err)
		}
		defer func() { _ = tok.Close() }()
	}

	h := NewHandler(tok,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithMaxIDs(s.cfg.Server.MaxIDs),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithEngineInfo(info),
		WithLogger(s.logger),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("listening", "addr", s.cfg.Server.ListenAddr, "backend", info.Backend, "path", info.ModelPath)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
