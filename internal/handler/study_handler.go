package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mstudy/internal/pkg/response"
	"github.com/xxxsen/mstudy/internal/service"
)

type StudyHandler struct {
	study *service.StudyService
}

func NewStudyHandler(study *service.StudyService) *StudyHandler {
	return &StudyHandler{study: study}
}

type summaryRequest struct {
	FileID  string `json:"file_id"`
	Offline bool   `json:"offline"`
}

type answerRequest struct {
	FileID   string `json:"file_id"`
	Question string `json:"question"`
	Offline  bool   `json:"offline"`
}

type countRequest struct {
	FileID  string `json:"file_id"`
	Count   int    `json:"count"`
	Offline bool   `json:"offline"`
}

type gradeRequest struct {
	Selections map[string]*int `json:"selections"`
}

func (h *StudyHandler) Summary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request")
		return
	}
	res, err := h.study.Summarize(c.Request.Context(), getUserID(c), req.FileID, service.Options{Offline: req.Offline})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *StudyHandler) Answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request")
		return
	}
	res, err := h.study.Answer(c.Request.Context(), getUserID(c), req.FileID, req.Question, service.Options{Offline: req.Offline})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *StudyHandler) Exam(c *gin.Context) {
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request")
		return
	}
	res, err := h.study.GenerateExam(c.Request.Context(), getUserID(c), req.FileID, req.Count, service.Options{Offline: req.Offline})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *StudyHandler) Flashcards(c *gin.Context) {
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request")
		return
	}
	res, err := h.study.GenerateFlashcards(c.Request.Context(), getUserID(c), req.FileID, req.Count, service.Options{Offline: req.Offline})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *StudyHandler) Grade(c *gin.Context) {
	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request")
		return
	}
	res, err := h.study.Grade(c.Request.Context(), getUserID(c), c.Param("id"), req.Selections)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *StudyHandler) Artifacts(c *gin.Context) {
	items, err := h.study.ListArtifacts(c.Request.Context(), getUserID(c), c.Query("file_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"artifacts": items})
}
