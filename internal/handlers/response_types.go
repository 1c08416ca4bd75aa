package handlers

import (
	"github.com/xpanvictor/voxchat/internal/domains/voice"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// VoicesResponse lists the catalog with the active voice
type VoicesResponse struct {
	Voices    []voice.Descriptor `json:"voices"`
	Selected  string             `json:"selected"`
	Available bool               `json:"available"`
}

// SelectVoiceRequest represents the request body for choosing a voice
type SelectVoiceRequest struct {
	ID string `json:"id" binding:"required"`
}

// TalkResponse is returned when a conversation cycle was started
type TalkResponse struct {
	Message string `json:"message"`
	Phase   string `json:"phase"`
}
