package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curricula/internal/pipeline"
)

const maxPayload = 1 << 20

// Route paths
const (
	CoursePath  = "/api/v1/courses/{course_id}"
	LessonsPath = "/api/v1/courses/{course_id}/units/{unit_id}/lessons"
	LessonPath  = LessonsPath + "/{lesson_id}"
	OrderPath   = LessonPath + "/order"
	HealthPath  = "/healthz"
)

// Dispatcher runs a named operation. [pipeline.Processor] implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, req *pipeline.Request) pipeline.Response
}

// API exposes the catalog operations over HTTP.
type API struct {
	dispatcher Dispatcher
	logger     *log.Logger
}

// NewAPI creates a new API backed by d
func NewAPI(d Dispatcher, logger *log.Logger) *API {
	return &API{dispatcher: d, logger: logger}
}

// Mount registers every catalog route and the health check on r.
func (a *API) Mount(r Router) {
	r.Handle(http.MethodGet, CoursePath, a.operation(pipeline.OpFetchCourse))
	r.Handle(http.MethodPut, LessonsPath, a.operation(pipeline.OpMoveLesson))
	r.Handle(http.MethodPut, OrderPath, a.operation(pipeline.OpReorderLesson))
	r.Handle(http.MethodDelete, LessonPath, a.operation(pipeline.OpDeleteLesson))
	r.Handler(Health{})
}

// NewRouter creates a [BasicRouter] with recovery, logging and, when limiter is set, rate limiting,
// and mounts api on it.
func NewRouter(api *API, limiter *RateLimiter, logger *log.Logger) *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recovery(logger), Logging(logger))
	if limiter != nil {
		r.Use(limiter.Middleware())
	}
	api.Mount(r)
	return r
}

// operation builds the handler that turns an HTTP request into a pipeline run of name.
func (a *API) operation(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &pipeline.Request{
			CourseID: r.PathValue("course_id"),
			UnitID:   r.PathValue("unit_id"),
			LessonID: r.PathValue("lesson_id"),
			UserID:   r.Header.Get(UserHeader),
		}

		if r.Body != nil && r.Method != http.MethodGet {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayload))
			if err != nil {
				a.logger.Warn("failed to read request body", "operation", name, "error", err)
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
				return
			}
			req.Payload = body
		}

		WriteResponse(w, a.dispatcher.Dispatch(r.Context(), name, req))
	})
}

// WriteResponse writes resp with its mapped status code and JSON payload.
func WriteResponse(w http.ResponseWriter, resp pipeline.Response) {
	status := resp.Kind.HTTPStatus()
	payload := resp.Payload()
	if payload == nil || status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Default().Warn("failed to encode response", "error", err)
	}
}

// Health answers liveness probes.
type Health struct{}

func (Health) Routes() []string { return []string{"GET " + HealthPath} }

func (Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
