package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxchat/internal/domains/conversation"
	"github.com/xpanvictor/voxchat/internal/domains/presentation"
	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/pkg/Logger"
)

type SessionHandler struct {
	session    *session.Session
	controller *conversation.Controller
	// cycles started over HTTP outlive the request
	baseCtx context.Context
	logger  *Logger.Logger
}

func NewSessionHandler(
	baseCtx context.Context,
	sess *session.Session,
	controller *conversation.Controller,
	logger *Logger.Logger,
) *SessionHandler {
	return &SessionHandler{
		session:    sess,
		controller: controller,
		baseCtx:    baseCtx,
		logger:     logger,
	}
}

func (h *SessionHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.GET("/session", h.GetSession)
		api.POST("/talk", h.StartTalk)
		api.POST("/history/clear", h.ClearHistory)
		api.GET("/history/export", h.ExportHistory)
		api.GET("/voices", h.ListVoices)
		api.POST("/voices/select", h.SelectVoice)
	}
}

// GetSession returns the current page model
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, presentation.Render(h.session.State()))
}

// StartTalk begins a conversation cycle; the outcome is pushed to the page
func (h *SessionHandler) StartTalk(c *gin.Context) {
	err := h.controller.Start(h.baseCtx, nil)
	if errors.Is(err, conversation.ErrBusy) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   conversation.UserMessage(err),
			Details: string(h.controller.Phase()),
		})
		return
	}
	if err != nil {
		h.logger.Errorf("start talk: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusAccepted, TalkResponse{
		Message: "Listening",
		Phase:   string(h.session.Phase()),
	})
}

// ClearHistory empties the transcript and the scratch area
func (h *SessionHandler) ClearHistory(c *gin.Context) {
	h.controller.ClearHistory(c.Request.Context())
	c.JSON(http.StatusOK, presentation.Render(h.session.State()))
}

// ExportHistory downloads the conversation as chat_history_<ts>.json
func (h *SessionHandler) ExportHistory(c *gin.Context) {
	if err := exportHistory(c, h.session.History.Snapshot()); err != nil {
		h.logger.Errorf("export history: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Couldn't export history",
			Details: err.Error(),
		})
	}
}

// ListVoices returns the voice catalog and the active voice
func (h *SessionHandler) ListVoices(c *gin.Context) {
	c.JSON(http.StatusOK, VoicesResponse{
		Voices:    h.session.Voices.Voices(),
		Selected:  h.session.Voices.Selected(),
		Available: h.session.Voices.Available(),
	})
}

// SelectVoice switches the active voice, falling back when id is unknown
func (h *SessionHandler) SelectVoice(c *gin.Context) {
	var req SelectVoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request data",
			Details: err.Error(),
		})
		return
	}

	selected := h.session.Voices.Select(req.ID)
	if selected != req.ID {
		h.logger.Infof("voice %s unavailable, using %s", req.ID, selected)
	}
	c.JSON(http.StatusOK, presentation.Render(h.session.State()))
}
