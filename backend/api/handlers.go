package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amandeep2102/vision-chat/backend/cache"
	"github.com/amandeep2102/vision-chat/backend/inference"
	"github.com/amandeep2102/vision-chat/backend/logger"
	"github.com/amandeep2102/vision-chat/backend/processor"
	"github.com/amandeep2102/vision-chat/backend/worker"
	"github.com/amandeep2102/vision-chat/shared/models"
)

// uploadBodySlack covers the JSON envelope around the encoded image.
const uploadBodySlack = 4 << 10

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: msg})
}

// toolCount reports how many tool definitions a request carried. The model
// has no tool calling, so they are only counted.
func toolCount(raw json.RawMessage) int {
	var tools []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &tools) != nil {
		return 0
	}
	return len(tools)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		OK:          true,
		Model:       s.cfg.ModelName,
		ModelStatus: s.cfg.Invoker.Status().String(),
		Timestamp:   time.Now().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleUploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxImageBytes+uploadBodySlack)

	var req models.UploadImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("image exceeds %d bytes", s.cfg.MaxImageBytes))
			return
		}
		abortWithError(c, http.StatusBadRequest, "invalid upload body: "+err.Error())
		return
	}
	if req.Image == "" {
		abortWithError(c, http.StatusBadRequest, "No image provided")
		return
	}
	if int64(len(req.Image)) > s.cfg.MaxImageBytes {
		abortWithError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("image exceeds %d bytes", s.cfg.MaxImageBytes))
		return
	}

	id, err := s.cfg.Store.Put(req.Image)
	if err != nil {
		slog.Error("[IMAGE] upload failed", logger.Err(err))
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Infof("[IMAGE] uploaded %s (%d bytes encoded)", id, len(req.Image))

	c.JSON(http.StatusOK, models.UploadImageResponse{URL: models.ImageURL(id), ID: id})
}

func (s *Server) handleGetImage(c *gin.Context) {
	id := c.Param("id")
	data, err := s.cfg.Store.Get(id)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, "Image not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	raw, err := processor.DecodeBase64(data)
	if err != nil {
		slog.Error("[IMAGE] stored image does not decode", slog.String("id", id), logger.Err(err))
		abortWithError(c, http.StatusInternalServerError, "Error decoding image")
		return
	}
	c.Data(http.StatusOK, "image/png", raw)
}

func (s *Server) handleChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid chat request: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		abortWithError(c, http.StatusBadRequest, "messages must be a non-empty array")
		return
	}
	model := req.Model
	if model == "" {
		model = s.cfg.ModelName
	}
	logger.Infof("[CHAT] request with %d messages", len(req.Messages))
	if n := toolCount(req.Tools); n > 0 {
		logger.Debugf("[CHAT] ignoring %d tool definitions", n)
	}

	// Fail fast before resolving any images.
	if s.cfg.Invoker.Status() != inference.StatusLoaded {
		abortWithError(c, http.StatusServiceUnavailable, "Model is not loaded yet, please retry later")
		return
	}

	turns, report := s.cfg.Normalizer.Normalize(c.Request.Context(), req.Messages)
	if report.ImagesDropped > 0 {
		logger.Warnf("[CHAT] continuing with %d of %d images", report.ImagesResolved, report.ImagesResolved+report.ImagesDropped)
	}

	result, err := s.cfg.Invoker.Invoke(c.Request.Context(), turns, model)
	if err != nil {
		switch {
		case errors.Is(err, inference.ErrModelNotReady):
			abortWithError(c, http.StatusServiceUnavailable, "Model is not loaded yet, please retry later")
		case errors.Is(err, worker.ErrPoolBusy), errors.Is(err, worker.ErrPoolStopped):
			abortWithError(c, http.StatusServiceUnavailable, "Inference queue is full, please retry later")
		default:
			slog.Error("[CHAT] generation failed", slog.String("model", model), logger.Err(err))
			abortWithError(c, http.StatusInternalServerError, "Error generating response: "+err.Error())
		}
		return
	}
	logger.Infof("[CHAT] answered in %.2fs", result.Elapsed.Seconds())

	c.JSON(http.StatusOK, inference.Shape(result, time.Now()))
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"images":     s.cfg.Store.GetStats(),
		"workers":    s.cfg.Pool.GetStats(),
		"normalizer": s.cfg.Normalizer.GetStats(),
		"model": gin.H{
			"name":   s.cfg.ModelName,
			"status": s.cfg.Invoker.Status().String(),
			"params": s.cfg.Invoker.Params(),
		},
	})
}
