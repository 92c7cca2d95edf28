package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/craftbase/content-api/internal/dto"
	"github.com/craftbase/content-api/internal/models"
	appErrors "github.com/craftbase/content-api/pkg/errors"
	"github.com/craftbase/content-api/pkg/response"
)

type documentService interface {
	Create(ctx context.Context, collection string, req dto.CreateDocumentRequest) (*dto.DocumentResult, error)
	Get(ctx context.Context, documentID, locale, status string) (*models.Document, error)
	List(ctx context.Context, collection string, req dto.ListDocumentsRequest) ([]models.DocumentListItem, *models.Pagination, error)
	Update(ctx context.Context, documentID string, req dto.UpdateDocumentRequest) (*dto.DocumentResult, error)
	Patch(ctx context.Context, documentID string, req dto.PatchDocumentRequest) (*dto.DocumentResult, error)
	ChangeStatus(ctx context.Context, documentID string, req dto.ChangeStatusRequest) (*dto.StatusChangeResult, error)
	Unpublish(ctx context.Context, documentID string) (*dto.UnpublishResult, error)
	Delete(ctx context.Context, documentID string) error
	History(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
	WorkflowTransitions(ctx context.Context, documentID string) (*dto.TransitionsResponse, error)
}

// DocumentHandler exposes the document lifecycle endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler builds a new handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Create stores the first version of a new document.
func (h *DocumentHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid document payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), c.Param("collection"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Get returns the reconstructed current version of a document, or the newest
// version in the requested status.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"), c.Query("locale"), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// List pages through the documents of a collection.
func (h *DocumentHandler) List(c *gin.Context) {
	var req dto.ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid list parameters"))
		return
	}

	items, pagination, err := h.service.List(c.Request.Context(), c.Param("collection"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Update replaces the content of a document with a new version.
func (h *DocumentHandler) Update(c *gin.Context) {
	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid document payload"))
		return
	}
	result, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Patch applies ordered edit operations to a document.
func (h *DocumentHandler) Patch(c *gin.Context) {
	var req dto.PatchDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid patch payload"))
		return
	}
	result, err := h.service.Patch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ChangeStatus moves a document along its workflow.
func (h *DocumentHandler) ChangeStatus(c *gin.Context) {
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	result, err := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Unpublish archives every published version of a document.
func (h *DocumentHandler) Unpublish(c *gin.Context) {
	result, err := h.service.Unpublish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete soft-deletes a document.
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History lists every version of a document, newest first.
func (h *DocumentHandler) History(c *gin.Context) {
	versions, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// Transitions lists the workflow statuses reachable from the current one.
func (h *DocumentHandler) Transitions(c *gin.Context) {
	result, err := h.service.WorkflowTransitions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
