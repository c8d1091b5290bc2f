package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/deepresearch/internal/pipeline"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

// Runner executes a full research pipeline run.
type Runner interface {
	Run(ctx context.Context, query string, useRAG bool, kWeb, kDocs int) (pipeline.ResearchState, error)
}

// Records is the persistence surface the research handlers need.
type Records interface {
	Save(ctx context.Context, state pipeline.ResearchState, metadata map[string]interface{}) error
	Get(ctx context.Context, id string) (store.Record, error)
	List(ctx context.Context, skip, limit int) ([]store.Record, error)
	Search(ctx context.Context, q string, limit int) ([]store.Record, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (store.Stats, error)
}

type ResearchHandler struct {
	Runner  Runner
	Records Records
	Logger  *log.Logger

	DefaultKWeb  int
	DefaultKDocs int
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/research", h.create)
	g.GET("/research", h.history)
	g.GET("/research/search", h.search)
	g.GET("/research/:id", h.get)
	g.DELETE("/research/:id", h.delete)
	g.GET("/stats", h.stats)
}

type researchRequest struct {
	Query  string `json:"query"`
	UseRAG *bool  `json:"use_rag"`
	KWeb   int    `json:"k_web"`
	KDocs  int    `json:"k_docs"`
}

type researchResponse struct {
	pipeline.ResearchState
	Saved bool `json:"saved"`
}

// create runs the full pipeline for a query and persists the outcome. A
// failed pipeline run is still a valid response (stage=failed); only bad
// input is a transport error. A persistence failure is reported through
// saved=false rather than failing the request.
func (h *ResearchHandler) create(c echo.Context) error {
	var req researchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}
	kWeb := req.KWeb
	if kWeb <= 0 {
		kWeb = h.DefaultKWeb
	}
	kDocs := req.KDocs
	if kDocs <= 0 {
		kDocs = h.DefaultKDocs
	}

	ctx := c.Request().Context()
	state, runErr := h.Runner.Run(ctx, req.Query, useRAG, kWeb, kDocs)
	if runErr != nil {
		h.Logger.Printf("run %s failed: %v", state.ID, runErr)
	}

	saved := true
	meta := map[string]interface{}{"use_rag": useRAG, "k_web": kWeb, "k_docs": kDocs}
	if err := h.Records.Save(ctx, state, meta); err != nil {
		saved = false
		h.Logger.Printf("run %s not persisted: %v", state.ID, err)
	}
	return c.JSON(http.StatusOK, researchResponse{ResearchState: state, Saved: saved})
}

func (h *ResearchHandler) history(c echo.Context) error {
	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 10)
	recs, err := h.Records.List(c.Request().Context(), skip, limit)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []store.Record{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"records": recs})
}

func (h *ResearchHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	recs, err := h.Records.Search(c.Request().Context(), q, intQuery(c, "limit", 10))
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []store.Record{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"records": recs})
}

func (h *ResearchHandler) get(c echo.Context) error {
	rec, err := h.Records.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *ResearchHandler) delete(c echo.Context) error {
	err := h.Records.Delete(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *ResearchHandler) stats(c echo.Context) error {
	st, err := h.Records.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func intQuery(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
