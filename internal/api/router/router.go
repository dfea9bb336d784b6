package router

import (
	"context"
	"errors"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/extractor"
	"resume-match-go/internal/pipeline"
)

// RegisterRoutes wires the /api/v1 routes onto the hertz server.
func RegisterRoutes(h *server.Hertz, matchHandler *handler.MatchHandler) {
	api := h.Group("/api/v1")

	api.POST("/documents", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "file is required"})
			return
		}

		kind := ctx.PostForm("kind")
		if kind == "" {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "kind is required (resume or job_description)"})
			return
		}
		userID := ctx.PostForm("user_id")

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to open upload"})
			return
		}
		defer file.Close()

		resp, err := matchHandler.HandleDocumentUpload(c, file, fileHeader.Filename, kind, userID)
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.DELETE("/documents/:id", func(c context.Context, ctx *app.RequestContext) {
		if err := matchHandler.HandleDeleteDocument(c, ctx.Param("id")); err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "deleted"})
	})

	api.POST("/matches", func(c context.Context, ctx *app.RequestContext) {
		var req handler.CreateMatchRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
			return
		}

		result, err := matchHandler.HandleCreateMatch(c, &req)
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	api.GET("/matches/:id", func(c context.Context, ctx *app.RequestContext) {
		result, err := matchHandler.HandleGetMatch(c, ctx.Param("id"))
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	api.PATCH("/suggestions/:id", func(c context.Context, ctx *app.RequestContext) {
		var req handler.ResolveSuggestionRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
			return
		}

		if err := matchHandler.HandleResolveSuggestion(c, ctx.Param("id"), &req); err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api.GET("/resumes/:id/best-matches", func(c context.Context, ctx *app.RequestContext) {
		limit, _ := strconv.Atoi(ctx.Query("limit"))

		resp, err := matchHandler.HandleRankJobs(c, ctx.Param("id"), limit)
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// statusForError maps pipeline sentinels to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrDocumentNotFound),
		errors.Is(err, pipeline.ErrMatchNotFound):
		return consts.StatusNotFound
	case errors.Is(err, pipeline.ErrRateLimited):
		return consts.StatusTooManyRequests
	case errors.Is(err, pipeline.ErrMatchInProgress):
		return consts.StatusConflict
	case errors.Is(err, extractor.ErrUnsupportedFormat):
		return consts.StatusBadRequest
	case errors.Is(err, pipeline.ErrEmbeddingServiceUnavailable):
		return consts.StatusServiceUnavailable
	default:
		return consts.StatusInternalServerError
	}
}
