package server

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/deepresearch/internal/docstore"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch"
)

type DocumentsHandler struct {
	Docs         *docstore.Store
	Fetcher      web_fetch.WebFetcher
	SnapshotPath string
	Logger       *log.Logger
}

func (h *DocumentsHandler) Register(g *echo.Group) {
	g.POST("/documents", h.ingest)
	g.DELETE("/documents", h.clear)
	g.GET("/documents/stats", h.stats)
}

type ingestRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	URL        string `json:"url"`
}

// ingest adds a document to the knowledge base, either from inline text or
// by fetching and extracting a URL. Re-ingesting a document id replaces its
// previous chunks.
func (h *DocumentsHandler) ingest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json body")
	}
	if req.Text == "" && req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text or url is required")
	}

	ctx := c.Request().Context()
	text := req.Text
	docID := req.DocumentID
	if req.URL != "" {
		if h.Fetcher == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "url ingestion not configured")
		}
		page, err := h.Fetcher.Exec(ctx, req.URL)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "fetching url: "+err.Error())
		}
		if page.Text == "" {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "no readable content at url")
		}
		text = page.Text
		if docID == "" {
			docID = req.URL
		}
	}
	if docID == "" {
		docID = uuid.NewString()
	}

	chunks, err := h.Docs.Ingest(ctx, docID, text)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "ingesting document: "+err.Error())
	}
	h.snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{"document_id": docID, "chunks": chunks})
}

func (h *DocumentsHandler) clear(c echo.Context) error {
	h.Docs.Clear()
	h.snapshot()
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *DocumentsHandler) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{
		"documents": h.Docs.Documents(),
		"chunks":    h.Docs.Count(),
	})
}

func (h *DocumentsHandler) snapshot() {
	if h.SnapshotPath == "" {
		return
	}
	if err := h.Docs.SaveFile(h.SnapshotPath); err != nil {
		h.Logger.Printf("snapshot not written: %v", err)
	}
}
