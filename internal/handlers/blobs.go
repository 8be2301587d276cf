package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sudokim/skku-chat/internal/blob"
)

// BlobHandler exposes the blob store over HTTP: upload, download, delete,
// and directory listing (a path ending in "/").
type BlobHandler struct {
	blobs blob.Store
}

// NewBlobHandler builds a BlobHandler.
func NewBlobHandler(blobs blob.Store) *BlobHandler {
	return &BlobHandler{blobs: blobs}
}

// Upload stores the request body under the given path.
func (h *BlobHandler) Upload(c *gin.Context) {
	path := blobPath(c)
	if path == "" || strings.HasSuffix(path, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid blob path"})
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty upload"})
		return
	}

	if err := h.blobs.Upload(c.Request.Context(), path, data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": path})
}

// Serve returns blob bytes, or the paths under a directory prefix when the
// request path ends in "/".
func (h *BlobHandler) Serve(c *gin.Context) {
	path := blobPath(c)

	if strings.HasSuffix(path, "/") || path == "" {
		paths, err := h.blobs.List(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"blobs": paths})
		return
	}

	data, err := h.blobs.Get(c.Request.Context(), path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

// Delete removes a blob.
func (h *BlobHandler) Delete(c *gin.Context) {
	path := blobPath(c)

	if err := h.blobs.Delete(c.Request.Context(), path); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func blobPath(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}
