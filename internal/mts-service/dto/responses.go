package dto

import (
	"github.com/radieske/mts-gateway/internal/gateway"
)

// APIResponse é o envelope padrão das respostas REST
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TicketReplyData embrulha o reply no formato {content:{type:"ticket-reply",...}}
type TicketReplyData struct {
	Content TicketReplyContent `json:"content"`
}

type TicketReplyContent struct {
	Type       string                 `json:"type"` // "ticket-reply"
	TicketID   string                 `json:"ticketId"`
	Status     string                 `json:"status"`
	Signature  string                 `json:"signature,omitempty"`
	Code       int                    `json:"code,omitempty"`
	Message    string                 `json:"message,omitempty"`
	BetDetails []gateway.SubBetStatus `json:"betDetails,omitempty"`
}

func NewTicketReply(env gateway.Envelope) TicketReplyData {
	return TicketReplyData{Content: TicketReplyContent{
		Type:       "ticket-reply",
		TicketID:   env.TicketID,
		Status:     env.Status,
		Signature:  env.Signature,
		Code:       env.Code,
		Message:    env.Message,
		BetDetails: env.SubBets,
	}}
}

type TicketStatusResponse struct {
	TicketID string `json:"ticketId"`
	Status   string `json:"status"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	Timestamp  string `json:"timestamp"`
	Downstream string `json:"downstream"` // connected | disconnected
}
