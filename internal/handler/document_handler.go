package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mstudy/internal/pkg/response"
	"github.com/xxxsen/mstudy/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
	bodyLimit int64
}

func NewDocumentHandler(documents *service.DocumentService, bodyLimit int64) *DocumentHandler {
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}
	return &DocumentHandler{documents: documents, bodyLimit: bodyLimit}
}

type documentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Format  string `json:"format"`
}

func (h *DocumentHandler) Save(c *gin.Context) {
	limitBody(c, h.bodyLimit)
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			invalidRequest(c, "document exceeds "+formatUploadLimit(h.bodyLimit))
			return
		}
		invalidRequest(c, "invalid request")
		return
	}
	doc, err := h.documents.Save(c.Request.Context(), getUserID(c), service.DocumentInput{
		ID:      c.Param("id"),
		Title:   req.Title,
		Content: req.Content,
		Format:  req.Format,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": doc.ID, "title": doc.Title, "format": doc.Format, "mtime": doc.Mtime})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}
