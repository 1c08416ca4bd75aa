package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxchat/internal/domains/conversation"
	"github.com/xpanvictor/voxchat/internal/domains/presentation"
	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io"
	"github.com/xpanvictor/voxchat/pkg/io/device"
	"github.com/xpanvictor/voxchat/pkg/io/mic"
	"github.com/xpanvictor/voxchat/pkg/io/registry"
	audioring "github.com/xpanvictor/voxchat/pkg/io/stt/audioRing"
	"github.com/xpanvictor/voxchat/pkg/observe"
)

const maxMessageBytes = 1 << 20

// Deps are the collaborators a WebSocket connection drives
type Deps struct {
	Session        *session.Session
	Controller     *conversation.Controller
	Mic            *mic.Microphone
	Publisher      *io.Publisher
	DeviceRegistry registry.Registry
	Metrics        *observe.Metrics
	Logger         *Logger.Logger
	IdleTimeout    time.Duration
}

// WebSocketHandler handles WebSocket connections and routes
type WebSocketHandler struct {
	logger            *Logger.Logger
	session           *session.Session
	controller        *conversation.Controller
	mic               *mic.Microphone
	publisher         *io.Publisher
	deviceRegistry    registry.Registry
	connectionManager *ConnectionManager
	upgrader          websocket.Upgrader
	// cycles started from a socket outlive the message that started them
	baseCtx context.Context
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(baseCtx context.Context, d Deps) *WebSocketHandler {
	return &WebSocketHandler{
		logger:            d.Logger,
		session:           d.Session,
		controller:        d.Controller,
		mic:               d.Mic,
		publisher:         d.Publisher,
		deviceRegistry:    d.DeviceRegistry,
		connectionManager: NewConnectionManager(d.Logger, d.Metrics, d.IdleTimeout),
		baseCtx:           baseCtx,
		upgrader: websocket.Upgrader{
			// the page is served from this process; any origin may attach
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRouter) {
	ws := router.Group("/ws")
	{
		ws.GET("", h.HandleWebSocket)
		ws.GET("/stats", h.HandleStats)
	}
}

// HandleWebSocket attaches a browser tab to the session. A tab connected with
// ?mode=text only renders; it neither captures nor plays audio.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	ws.SetReadLimit(maxMessageBytes)

	caps := device.Capabilities{AudioSink: true, AudioSource: true, TextSink: true}
	if c.Query("mode") == "text" {
		caps = device.Capabilities{TextSink: true}
	}
	conn := NewConnection(ws, caps)

	h.connectionManager.RegisterConnection(conn)
	defer h.connectionManager.UnregisterConnection(conn.DeviceID)

	if err := h.attach(conn); err != nil {
		h.logger.Errorf("Failed to attach connection %s: %v", conn.DeviceID, err)
		return
	}
	defer h.detach(conn)

	h.sendRender(conn)
	h.handleConnection(conn)
}

// HandleStats provides connection statistics
func (h *WebSocketHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   h.connectionManager.GetStats(),
	})
}

func (h *WebSocketHandler) attach(conn *Connection) error {
	sid := h.session.ID
	entry := device.Device{
		SessionID:  sid,
		DeviceID:   conn.DeviceID,
		Caps:       conn.Capabilities,
		LastActive: time.Now(),
		Endpoints:  make(map[device.EndpointID]device.Endpoint),
	}
	if err := h.deviceRegistry.UpsertDevice(sid, entry); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	if err := h.deviceRegistry.AttachEndpoint(sid, conn.DeviceID, conn.Endpoint); err != nil {
		_ = h.deviceRegistry.RemoveDevice(sid, conn.DeviceID)
		return fmt.Errorf("register endpoint: %w", err)
	}
	return nil
}

func (h *WebSocketHandler) detach(conn *Connection) {
	sid := h.session.ID
	h.deviceRegistry.DetachEndpoint(sid, conn.DeviceID, conn.Endpoint)
	if err := h.deviceRegistry.RemoveDevice(sid, conn.DeviceID); err != nil {
		h.logger.Errorf("Failed to remove device %s: %v", conn.DeviceID, err)
	}
}

// handleConnection is the read loop; it returns when the socket closes
func (h *WebSocketHandler) handleConnection(conn *Connection) {
	h.logger.Infof("Handling connection %s", conn.DeviceID)

	for {
		messageType, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Errorf("WebSocket read error: %v", err)
			} else {
				h.logger.Infof("WebSocket connection %s closed", conn.DeviceID)
			}
			return
		}

		conn.UpdateLastActive()

		switch messageType {
		case websocket.TextMessage:
			h.handleTextMessage(conn, data)
		case websocket.BinaryMessage:
			h.handleBinaryMessage(conn, data)
		}
	}
}

func (h *WebSocketHandler) handleTextMessage(conn *Connection, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warnf("Failed to unmarshal WebSocket message: %v", err)
		h.sendError(conn, "INVALID_MESSAGE", "Invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypeInit:
		h.handleInit(conn, msg.Data)

	case MessageTypeStartTalk:
		h.handleStartTalk(conn)

	case MessageTypeAudioEnd:
		if err := h.mic.End(); err != nil && !errors.Is(err, mic.ErrNotListening) {
			h.logger.Warnf("audio end: %v", err)
		}

	case MessageTypePlaybackDone:
		var done PlaybackDoneMessage
		if err := decodeData(msg.Data, &done); err != nil {
			h.sendError(conn, "INVALID_MESSAGE", "playback_done needs a clipId")
			return
		}
		if !h.publisher.Ack(done.ClipID) {
			h.logger.Debugf("ack for unknown clip %s", done.ClipID)
		}

	case MessageTypeSelectVoice:
		var sel SelectVoiceMessage
		if err := decodeData(msg.Data, &sel); err != nil || sel.ID == "" {
			h.sendError(conn, "INVALID_MESSAGE", "select_voice needs an id")
			return
		}
		if got := h.session.Voices.Select(sel.ID); got != sel.ID {
			h.logger.Infof("voice %s unavailable, using %s", sel.ID, got)
		}

	case MessageTypeClearHistory:
		h.controller.ClearHistory(h.baseCtx)

	default:
		h.logger.Warnf("Unknown message type: %s", msg.Type)
		h.sendError(conn, "UNKNOWN_MESSAGE_TYPE", fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

// handleBinaryMessage feeds one PCM frame to the microphone
func (h *WebSocketHandler) handleBinaryMessage(conn *Connection, data []byte) {
	if !conn.Capabilities.AudioSource {
		return
	}
	rate, channels := conn.Format()
	err := h.mic.Feed(audioring.AudioInput{
		Data:       data,
		Timestamp:  time.Now(),
		SampleRate: rate,
		Channels:   channels,
	})
	switch {
	case err == nil:
	case errors.Is(err, mic.ErrNotListening):
		// trailing frames after the utterance closed
		h.logger.Debugf("dropped %d bytes from %s", len(data), conn.DeviceID)
	default:
		h.logger.Warnf("audio frame from %s: %v", conn.DeviceID, err)
		h.sendError(conn, "AUDIO_PROCESSING_ERROR", "Failed to process audio input")
	}
}

func (h *WebSocketHandler) handleInit(conn *Connection, raw json.RawMessage) {
	var msg InitMessage
	if err := decodeData(raw, &msg); err != nil {
		h.sendError(conn, "INVALID_MESSAGE", "Invalid init payload")
		return
	}
	conn.SetFormat(msg.SampleRate, msg.Channels)
	rate, channels := conn.Format()
	h.logger.Infof("Connection %s initialised at %d Hz, %d channel(s)", conn.DeviceID, rate, channels)

	if err := conn.SendEvent(h.session.ID, EventInit, InitAck{
		Status:     "connected",
		SessionID:  h.session.ID,
		DeviceID:   conn.DeviceID,
		SampleRate: rate,
		Channels:   channels,
	}); err != nil {
		h.logger.Debugf("init ack: %v", err)
	}
	h.sendRender(conn)
}

func (h *WebSocketHandler) handleStartTalk(conn *Connection) {
	err := h.controller.Start(h.baseCtx, nil)
	if err == nil {
		return
	}
	if errors.Is(err, conversation.ErrBusy) {
		_ = conn.SendEvent(h.session.ID, io.EventNotice, session.Notice{
			Level: conversation.NoticeLevel(err),
			Text:  conversation.UserMessage(err),
			At:    time.Now(),
		})
		return
	}
	h.logger.Errorf("start talk: %v", err)
	h.sendError(conn, "START_FAILED", conversation.UserMessage(err))
}

func (h *WebSocketHandler) sendRender(conn *Connection) {
	if err := conn.SendEvent(h.session.ID, io.EventRender, presentation.Render(h.session.State())); err != nil {
		h.logger.Debugf("render to %s: %v", conn.DeviceID, err)
	}
}

func (h *WebSocketHandler) sendError(conn *Connection, code, message string) {
	if err := conn.SendError(h.session.ID, code, message); err != nil {
		h.logger.Debugf("error to %s: %v", conn.DeviceID, err)
	}
}

// ConnectionCount reports the number of attached tabs
func (h *WebSocketHandler) ConnectionCount() int {
	return h.connectionManager.GetConnectionCount()
}

// Close shuts down the WebSocket handler
func (h *WebSocketHandler) Close() error {
	return h.connectionManager.Close()
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
