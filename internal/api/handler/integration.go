package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/siemhub/orchestrator/internal/destination"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/repository"
	"github.com/siemhub/orchestrator/internal/service"
	"github.com/siemhub/orchestrator/internal/source/elastic"
)

// IntegrationHandler handles integration CRUD plus the schema tooling
// endpoints: mapping previews, table materialization, destination table
// listing and index sampling.
type IntegrationHandler struct {
	integrations *repository.IntegrationRepository
	tasks        *repository.TaskRepository
	schema       *service.SchemaService

	searchTimeout  time.Duration
	connectTimeout time.Duration
	previewDialect string

	// Connection factories, replaceable in tests.
	openSource func(it *domain.Integration, timeout time.Duration) (service.Source, error)
	openDest   func(it *domain.Integration) (destination.Destination, error)
}

// IntegrationOptions tunes the integration handler: the source search
// timeout, the connectivity-test deadline and the dialect previews assume
// when the request names none.
type IntegrationOptions struct {
	SearchTimeout  time.Duration
	ConnectTimeout time.Duration
	PreviewDialect string
}

// NewIntegrationHandler creates a new integration handler.
func NewIntegrationHandler(
	integrations *repository.IntegrationRepository,
	tasks *repository.TaskRepository,
	schema *service.SchemaService,
	opts IntegrationOptions,
) *IntegrationHandler {
	if opts.PreviewDialect == "" {
		opts.PreviewDialect = destination.DialectPostgres
	}
	return &IntegrationHandler{
		integrations:   integrations,
		tasks:          tasks,
		schema:         schema,
		searchTimeout:  opts.SearchTimeout,
		connectTimeout: opts.ConnectTimeout,
		previewDialect: opts.PreviewDialect,
		openSource: func(it *domain.Integration, timeout time.Duration) (service.Source, error) {
			return elastic.FromIntegration(it, timeout)
		},
		openDest: destination.Open,
	}
}

// ListIntegrations handles GET /api/v1/integrations.
func (h *IntegrationHandler) ListIntegrations(c *gin.Context) {
	items, err := h.integrations.List(c.Request.Context(), c.Query("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"integrations": items, "total": len(items)})
}

// GetIntegration handles GET /api/v1/integrations/:id.
func (h *IntegrationHandler) GetIntegration(c *gin.Context) {
	it, err := h.integrations.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// CreateIntegration handles POST /api/v1/integrations.
func (h *IntegrationHandler) CreateIntegration(c *gin.Context) {
	var it domain.Integration
	if err := c.ShouldBindJSON(&it); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	it.ID = ""

	if err := validateIntegration(&it); err != nil {
		respondError(c, err)
		return
	}
	if err := h.integrations.Create(c.Request.Context(), &it); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

// UpdateIntegration handles PUT /api/v1/integrations/:id.
func (h *IntegrationHandler) UpdateIntegration(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.integrations.GetByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	updated := *existing
	if err := c.ShouldBindJSON(&updated); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := validateIntegration(&updated); err != nil {
		respondError(c, err)
		return
	}
	if err := h.integrations.Update(ctx, &updated); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteIntegration handles DELETE /api/v1/integrations/:id. An integration
// still referenced by a task cannot be deleted.
func (h *IntegrationHandler) DeleteIntegration(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	count, err := h.tasks.CountByIntegration(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if count > 0 {
		respondError(c, domain.Validationf("integration is referenced by %d task(s)", count))
		return
	}

	if err := h.integrations.Delete(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// TestIntegration handles POST /api/v1/integrations/:id/test, a connectivity
// check against the configured system.
func (h *IntegrationHandler) TestIntegration(c *gin.Context) {
	ctx := c.Request.Context()
	it, err := h.integrations.GetByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if h.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.connectTimeout)
		defer cancel()
	}

	switch {
	case it.Kind == domain.IntegrationElasticsearch:
		src, err := h.openSource(it, h.searchTimeout)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := src.Ping(ctx); err != nil {
			respondError(c, err)
			return
		}
	case it.IsRelational():
		dest, err := h.openDest(it)
		if err != nil {
			respondError(c, err)
			return
		}
		defer dest.Close()
		if err := dest.Ping(ctx); err != nil {
			respondError(c, err)
			return
		}
	default:
		respondError(c, domain.Validationf("integration kind %q has no connectivity test", it.Kind))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type previewMappingRequest struct {
	IntegrationID string `json:"integration_id" binding:"required"`
	Index         string `json:"index" binding:"required"`
	Dialect       string `json:"dialect"`
}

// PreviewESMapping handles POST /api/v1/integrations/preview_es_mapping. It
// infers a column mapping without persisting or materializing anything.
func (h *IntegrationHandler) PreviewESMapping(c *gin.Context) {
	var req previewMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Dialect == "" {
		req.Dialect = h.previewDialect
	}

	ctx := c.Request.Context()
	it, err := h.integrations.GetByID(ctx, req.IntegrationID)
	if err != nil {
		respondError(c, err)
		return
	}
	src, err := h.openSource(it, h.searchTimeout)
	if err != nil {
		respondError(c, err)
		return
	}

	cols, err := h.schema.Infer(ctx, src, req.Index, req.Dialect)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": req.Index, "dialect": req.Dialect, "columns": cols})
}

type createTableRequest struct {
	SourceIntegrationID string                   `json:"source_integration_id" binding:"required"`
	DestIntegrationID   string                   `json:"dest_integration_id" binding:"required"`
	Index               string                   `json:"index" binding:"required"`
	Table               string                   `json:"table"`
	Columns             domain.ColumnMappingList `json:"columns"`
}

// CreateTableFromES handles POST /api/v1/integrations/create_table_from_es.
// Columns may come edited from a preview; when absent they are inferred.
func (h *IntegrationHandler) CreateTableFromES(c *gin.Context) {
	var req createTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	destIt, err := h.integrations.GetByID(ctx, req.DestIntegrationID)
	if err != nil {
		respondError(c, err)
		return
	}
	dest, err := h.openDest(destIt)
	if err != nil {
		respondError(c, err)
		return
	}
	defer dest.Close()

	cols := req.Columns
	if len(cols) == 0 {
		sourceIt, err := h.integrations.GetByID(ctx, req.SourceIntegrationID)
		if err != nil {
			respondError(c, err)
			return
		}
		src, err := h.openSource(sourceIt, h.searchTimeout)
		if err != nil {
			respondError(c, err)
			return
		}
		cols, err = h.schema.Infer(ctx, src, req.Index, dest.Dialect())
		if err != nil {
			respondError(c, err)
			return
		}
	}

	table := req.Table
	if table == "" {
		table = domain.DefaultTableName(req.Index)
	}

	if err := h.schema.Materialize(ctx, dest, table, cols); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"table": table, "columns": cols})
}

type integrationRefRequest struct {
	IntegrationID string `json:"integration_id" binding:"required"`
}

// DBTables handles POST /api/v1/integrations/db_tables, listing the tables of
// a relational destination.
func (h *IntegrationHandler) DBTables(c *gin.Context) {
	var req integrationRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	it, err := h.integrations.GetByID(ctx, req.IntegrationID)
	if err != nil {
		respondError(c, err)
		return
	}
	dest, err := h.openDest(it)
	if err != nil {
		respondError(c, err)
		return
	}
	defer dest.Close()

	tables, err := dest.ListTables(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables, "total": len(tables)})
}

type previewIndexRequest struct {
	IntegrationID string `json:"integration_id" binding:"required"`
	Index         string `json:"index" binding:"required"`
	Size          int    `json:"size"`
}

// PreviewESIndex handles POST /api/v1/integrations/preview_es_index,
// returning a sample of raw documents from an index.
func (h *IntegrationHandler) PreviewESIndex(c *gin.Context) {
	var req previewIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	it, err := h.integrations.GetByID(ctx, req.IntegrationID)
	if err != nil {
		respondError(c, err)
		return
	}
	src, err := h.openSource(it, h.searchTimeout)
	if err != nil {
		respondError(c, err)
		return
	}

	docs, err := h.schema.PreviewDocuments(ctx, src, req.Index, req.Size)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(docs))
	for _, doc := range docs {
		out = append(out, gin.H{"_id": doc.ID, "_source": doc.Source})
	}
	c.JSON(http.StatusOK, gin.H{"index": req.Index, "documents": out, "total": len(out)})
}

func validateIntegration(it *domain.Integration) error {
	if it.Name == "" {
		return domain.Validationf("integration name is required")
	}
	if !it.Kind.Valid() {
		return domain.Validationf("unknown integration kind %q", it.Kind)
	}
	if it.Kind == domain.IntegrationElasticsearch &&
		it.Config.String("host") == "" && it.Config.String("url") == "" {
		return domain.Validationf("elasticsearch integration needs a host")
	}
	if it.IsRelational() && it.ConnString() == "" {
		return domain.Validationf("%s integration needs conn_str or host and dbname", it.Kind)
	}
	return nil
}
