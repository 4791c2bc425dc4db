package recall

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
	"github.com/thecontextcache/contextcache-sub001/pkg/pack"
)

// Handler provides the HTTP handler for GET /projects/{id}/recall.
type Handler struct {
	newService func(r *http.Request) *Service
	byteBudget int
}

// NewHandler creates a recall Handler. byteBudget <= 0 uses
// pack.DefaultByteBudget.
func NewHandler(newService func(r *http.Request) *Service, byteBudget int) *Handler {
	return &Handler{newService: newService, byteBudget: byteBudget}
}

// Routes returns a chi.Router with the recall route mounted; it expects a
// "projectID" URL param from its parent router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)
	r.Get("/", h.handleRecall)
	return r
}

// response is the JSON shape for GET /projects/{id}/recall.
type response struct {
	Items          []itemResponse `json:"items"`
	MemoryPackText string         `json:"memory_pack_text"`
	Truncated      bool           `json:"truncated"`
}

type itemResponse struct {
	Memory    any      `json:"memory"`
	RankScore *float64 `json:"rank_score"`
}

func (h *Handler) handleRecall(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "projectID")
	projectID, err := uuid.Parse(rawID)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Validation("project id must be a valid UUID"))
		return
	}

	limit := DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	limit = ClampLimit(limit)

	format := pack.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = pack.FormatText
	}
	if format != pack.FormatText && format != pack.FormatTOON {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "format must be 'text' or 'toon'")
		return
	}

	query := r.URL.Query().Get("query")

	caller := auth.FromContext(r.Context())
	svc := h.newService(r)

	result, err := svc.Query(r.Context(), caller, projectID, query, limit)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	assembled := pack.Render(result.Items, format, h.byteBudget)

	items := make([]itemResponse, len(result.Items))
	for i, it := range result.Items {
		items[i] = itemResponse{Memory: it.Memory.ToResponse(), RankScore: it.RankScore}
	}

	httpserver.Respond(w, http.StatusOK, response{
		Items:          items,
		MemoryPackText: assembled.Text,
		Truncated:      assembled.Truncated,
	})
}
