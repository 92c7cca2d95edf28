package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/craftbase/content-api/internal/models"
	appErrors "github.com/craftbase/content-api/pkg/errors"
	"github.com/craftbase/content-api/pkg/response"
)

type mediaStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	GetURL(filename string) string
}

// MediaHandler accepts file uploads referenced by file and image fields and
// serves the stored files back.
type MediaHandler struct {
	store mediaStore
}

// NewMediaHandler builds a new handler.
func NewMediaHandler(store mediaStore) *MediaHandler {
	return &MediaHandler{store: store}
}

// Upload stores a multipart file and returns the payload a document's file
// field expects.
func (h *MediaHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart field \"file\" is required"))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	fileID := uuid.NewString()
	stored := fileID + strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, err := h.store.SaveStream(stored, src); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to store upload"))
		return
	}

	value := models.FileValue{
		FileID:    fileID,
		Filename:  stored,
		MimeType:  fileHeader.Header.Get("Content-Type"),
		SizeBytes: fileHeader.Size,
		URL:       h.store.GetURL(stored),
	}
	response.Created(c, value)
}

// Serve streams a stored file. The route wildcard may address size variants
// (sizes/<size>/<filename>) as well as primaries.
func (h *MediaHandler) Serve(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("filepath"), "/")
	if name == "" || strings.Contains(name, "..") {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}

	file, err := h.store.Open(name)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("file %q not found", name)))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to stat file"))
		return
	}
	http.ServeContent(c.Writer, c.Request, filepath.Base(name), info.ModTime(), file)
}
