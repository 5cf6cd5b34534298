package dto

import (
	"context"
	"errors"
	"net/http"

	"github.com/radieske/mts-gateway/internal/downstream"
	"github.com/radieske/mts-gateway/internal/gateway"
	"github.com/radieske/mts-gateway/internal/ticket"
)

// ErrorFor traduz erros de validação e do gateway para status HTTP + APIError.
// O mesmo código vai no bet_error do WebSocket.
func ErrorFor(err error) (int, *APIError) {
	if ve, ok := ticket.AsValidation(err); ok {
		return http.StatusBadRequest, &APIError{Code: http.StatusBadRequest, Message: "Validation failed", Details: ve.Error()}
	}
	if errors.Is(err, ErrInvalidCashout) {
		return http.StatusBadRequest, &APIError{Code: http.StatusBadRequest, Message: "Validation failed", Details: err.Error()}
	}

	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		status := http.StatusInternalServerError
		switch gerr.Kind {
		case gateway.KindDuplicateTicket:
			status = http.StatusConflict
		case gateway.KindDownstreamTimeout:
			status = http.StatusGatewayTimeout
		case gateway.KindTransportFailure:
			status = http.StatusBadGateway
		case gateway.KindDownstreamRejected:
			status = http.StatusUnprocessableEntity
		}
		return status, &APIError{Code: status, Message: string(gerr.Kind), Details: gerr.Error()}
	}

	return http.StatusInternalServerError, &APIError{Code: http.StatusInternalServerError, Message: "Internal error", Details: err.Error()}
}

// CashoutFailure classifica a falha de envio do cashout com os mesmos kinds do gateway
func CashoutFailure(cashoutID string, err error) error {
	switch {
	case errors.Is(err, downstream.ErrReplyTimeout), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, downstream.ErrConnectionLost), errors.Is(err, context.Canceled):
		return &gateway.Error{Kind: gateway.KindDownstreamTimeout, Message: "no cashout reply for " + cashoutID, Err: err}
	default:
		return &gateway.Error{Kind: gateway.KindTransportFailure, Message: "cashout " + cashoutID + " not sent", Err: err}
	}
}
