package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/craftbase/content-api/internal/schema"
	appErrors "github.com/craftbase/content-api/pkg/errors"
	"github.com/craftbase/content-api/pkg/response"
)

// CollectionHandler exposes the loaded collection definitions.
type CollectionHandler struct {
	registry *schema.Registry
}

// NewCollectionHandler builds a new handler.
func NewCollectionHandler(registry *schema.Registry) *CollectionHandler {
	return &CollectionHandler{registry: registry}
}

// List returns the names of every registered collection.
func (h *CollectionHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.registry.Names(), nil)
}

// Get returns the full definition of one collection.
func (h *CollectionHandler) Get(c *gin.Context) {
	name := c.Param("collection")
	def, ok := h.registry.Get(name)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("collection %q not found", name)))
		return
	}
	response.JSON(c, http.StatusOK, def, nil)
}
