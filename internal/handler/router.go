package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mstudy/internal/middleware"
)

type RouterDeps struct {
	Study *StudyHandler
	// Documents is nil when documents are read from a file store.
	Documents *DocumentHandler
	// RateWindow is the minimum gap between generation calls per user and route.
	RateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	group := api.Group("")
	group.Use(middleware.Identity())

	study := group.Group("/study")
	generate := study.Group("")
	generate.Use(middleware.RateLimit(deps.RateWindow))
	generate.POST("/summary", deps.Study.Summary)
	generate.POST("/answer", deps.Study.Answer)
	generate.POST("/exam", deps.Study.Exam)
	generate.POST("/flashcards", deps.Study.Flashcards)
	study.POST("/exams/:id/grade", deps.Study.Grade)
	study.GET("/artifacts", deps.Study.Artifacts)

	if deps.Documents != nil {
		group.PUT("/documents/:id", deps.Documents.Save)
		group.GET("/documents/:id", deps.Documents.Get)
	}
}
