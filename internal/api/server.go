package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenAgents/internal/agent"
	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/observability/metrics"
	"OpenAgents/internal/task"
	"OpenAgents/internal/tool"
	"OpenAgents/pkg/logger"
)

const maxBodyBytes = 1 << 20

// TaskService 是 API 依赖的编排器能力，*task.Orchestrator 满足该接口。
type TaskService interface {
	Submit(ctx context.Context, goal string) (*task.Task, error)
	Status(ctx context.Context, id string) (*task.Task, error)
	Result(ctx context.Context, id string) (*agent.Result, error)
	Resume(ctx context.Context, id, input string) error
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Task, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.TaskStats, error)
}

// ToolLister 返回已注册的工具契约，*tool.Gateway 满足该接口。
type ToolLister interface {
	Specs() []tool.Spec
}

// Server 负责暴露 REST 接口，供外部提交与跟踪任务。
type Server struct {
	addr            string
	tasks           TaskService
	tools           ToolLister
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// Option 定义可选配置。
type Option func(*Server)

// WithTools 启用 GET /tools。
func WithTools(tools ToolLister) Option {
	return func(s *Server) { s.tools = tools }
}

// WithLogger 指定请求日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, tasks TaskService, opts ...Option) *Server {
	s := &Server{addr: addr, tasks: tasks, shutdownTimeout: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Handler 返回注册了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", s.handleSubmit)
	mux.HandleFunc("GET /tasks", s.handleList)
	mux.HandleFunc("GET /tasks/stats", s.handleStats)
	mux.HandleFunc("GET /tasks/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /tasks/{id}/result", s.handleResult)
	mux.HandleFunc("POST /tasks/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.instrument(mux)
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
	s.logger.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type submitRequest struct {
	Goal string `json:"goal"`
}

type resumeRequest struct {
	Input string `json:"input"`
}

// statusResponse 是 GET /tasks/{id}/status 的响应体。
type statusResponse struct {
	ID            string      `json:"id"`
	Status        task.Status `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	BlockedReason string      `json:"blockedReason,omitempty"`
}

func newStatusResponse(t *task.Task) statusResponse {
	return statusResponse{
		ID:            t.ID,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		BlockedReason: t.BlockedReason,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.Goal) == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}
	created, err := s.tasks.Submit(r.Context(), req.Goal)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": created.ID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	current, err := s.tasks.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(current))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.tasks.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		if coded, ok := xerrors.From(err); ok && coded.Code() == task.CodeTaskNotFinished {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":  coded.Message(),
				"status": coded.Metadata()["status"],
			})
			return
		}
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	err := s.tasks.Resume(r.Context(), r.PathValue("id"), req.Input)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"resumed": true})
	case errors.Is(err, task.ErrTaskNotFound), errors.Is(err, task.ErrTaskNotBlocked):
		writeError(w, http.StatusNotFound, task.ErrTaskNotBlocked.Message())
	default:
		s.writeFailure(w, r, err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context(), listOptions(r)...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	out := make([]statusResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newStatusResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tasks.Stats(r.Context(), listOptions(r)...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	specs := []tool.Spec{}
	if s.tools != nil {
		specs = s.tools.Specs()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": specs})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listOptions 解析 status、limit、offset、order、q 与 since(RFC3339) 查询参数。
func listOptions(r *http.Request) []task.ListOption {
	query := r.URL.Query()
	var opts []task.ListOption
	if raw := query.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(strings.TrimSpace(part)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		opts = append(opts, task.WithLimit(limit))
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		opts = append(opts, task.WithOffset(offset))
	}
	if order := query.Get("order"); order != "" {
		opts = append(opts, task.WithSortOrder(task.ParseSortOrder(order)))
	}
	if q := query.Get("q"); q != "" {
		opts = append(opts, task.WithQuery(q))
	}
	if since, err := time.Parse(time.RFC3339, query.Get("since")); err == nil {
		opts = append(opts, task.WithUpdatedSince(since))
	}
	return opts
}

// writeFailure 按错误类别映射 HTTP 状态码，日志级别取自错误严重程度，内部错误不暴露细节。
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logger.Log(r.Context(), xerrors.LevelOf(err), "请求处理失败",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.Bool("retryable", xerrors.RetryableError(err)),
		slog.Any("error", err),
	)
	message := xerrors.MessageOf(err)
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, status, message)
}

func statusFor(err error) int {
	switch xerrors.KindOf(err) {
	case xerrors.KindValidation:
		return http.StatusBadRequest
	case xerrors.KindNotFound:
		return http.StatusNotFound
	case xerrors.KindConflict:
		return http.StatusConflict
	case xerrors.KindDenied:
		return http.StatusForbidden
	case xerrors.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
