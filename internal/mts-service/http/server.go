package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/downstream"
	"github.com/radieske/mts-gateway/internal/gateway"
	"github.com/radieske/mts-gateway/internal/mts-service/dto"
	"github.com/radieske/mts-gateway/internal/ticket"
)

// Gateway é o que a API precisa da camada de submissão
type Gateway interface {
	Submit(ctx context.Context, req gateway.Request) ([]gateway.Envelope, error)
	Status(ctx context.Context, ticketID string) (string, error)
}

// Cashouts envia cashout-inform à autoridade e confirma o reply
type Cashouts interface {
	Cashout(ctx context.Context, req downstream.CashoutRequest) (downstream.CashoutReply, error)
	AckCashout(ctx context.Context, reply downstream.CashoutReply) error
}

// API expõe os endpoints REST de apostas, cashout, consulta de tickets e health
type API struct {
	Log        *zap.Logger
	Service    string
	Builder    *ticket.Builder
	Gateway    Gateway
	Cashouts   Cashouts         // opcional; sem ele /api/cashout não é registrado
	Downstream func() bool      // estado da conexão com o downstream
	WS         http.HandlerFunc // upgrade do canal WebSocket, opcional

	OnCashout func(status string) // métricas
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", a.index)
	r.Get("/health", a.health)
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/bets/single", place[dto.SingleBetRequest](a))
		r.Post("/bets/accumulator", place[dto.AccumulatorBetRequest](a))
		r.Post("/bets/system", place[dto.SystemBetRequest](a))
		r.Post("/bets/banker-system", place[dto.BankerSystemBetRequest](a))
		r.Post("/bets/preset", place[dto.PresetBetRequest](a))
		r.Post("/bets/multi", place[dto.MultiBetRequest](a))
		r.Get("/tickets/{ticketId}", a.ticketStatus)
		if a.Cashouts != nil {
			r.Post("/cashout", a.cashout)
		}
	})
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, apiErr *dto.APIError) {
	writeJSON(w, status, dto.APIResponse{Success: false, Error: apiErr})
}

// place decodifica a requisição do tipo T, monta o ticket e submete
func place[T dto.BetRequest](a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, &dto.APIError{Code: http.StatusBadRequest, Message: "Invalid request body", Details: err.Error()})
			return
		}
		a.submit(w, r, req)
	}
}

func (a *API) submit(w http.ResponseWriter, r *http.Request, req dto.BetRequest) {
	t, err := a.Builder.Build(req.ID(), req.Shape(), req.StakeValue())
	if err != nil {
		a.fail(w, req.ID(), err)
		return
	}

	envs, err := a.Gateway.Submit(r.Context(), gateway.Request{
		RequestID: uuid.NewString(),
		Tickets:   []*ticket.Ticket{t},
	})
	if err != nil {
		a.fail(w, req.ID(), err)
		return
	}

	writeJSON(w, http.StatusOK, dto.APIResponse{Success: true, Data: dto.NewTicketReply(envs[0])})
}

func (a *API) fail(w http.ResponseWriter, ticketID string, err error) {
	status, apiErr := dto.ErrorFor(err)
	if status >= http.StatusInternalServerError {
		a.Log.Warn("ticket placement failed", zap.String("ticket_id", ticketID), zap.Error(err))
	} else {
		a.Log.Info("ticket refused", zap.String("ticket_id", ticketID), zap.Int("status", status), zap.String("reason", apiErr.Details))
	}
	writeError(w, status, apiErr)
}

// ticketStatus retorna pending enquanto a correlação está aberta, ou o status final
func (a *API) ticketStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticketId")
	st, err := a.Gateway.Status(r.Context(), id)
	if err != nil {
		a.fail(w, id, err)
		return
	}
	if st == gateway.StatusNotFound {
		writeError(w, http.StatusNotFound, &dto.APIError{Code: http.StatusNotFound, Message: "Ticket not found", Details: id})
		return
	}
	writeJSON(w, http.StatusOK, dto.APIResponse{Success: true, Data: dto.TicketStatusResponse{TicketID: id, Status: st}})
}

// cashout valida o pedido, envia à autoridade e devolve o reply síncrono.
// Reply aceito é confirmado em background, como os de ticket.
func (a *API) cashout(w http.ResponseWriter, r *http.Request) {
	var req dto.CashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &dto.APIError{Code: http.StatusBadRequest, Message: "Invalid request body", Details: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		a.fail(w, req.TicketID, err)
		return
	}

	reply, err := a.Cashouts.Cashout(r.Context(), req.Wire(uuid.NewString(), time.Now()))
	if err != nil {
		a.cashoutObserved("failed")
		a.fail(w, req.TicketID, dto.CashoutFailure(req.CashoutID, err))
		return
	}
	a.cashoutObserved(reply.Content.Status)

	if reply.Content.Status == downstream.StatusAccepted {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.Cashouts.AckCashout(ctx, reply); err != nil {
				a.Log.Warn("cashout ack failed", zap.String("cashout_id", req.CashoutID), zap.Error(err))
			}
		}()
	}
	a.Log.Info("cashout replied",
		zap.String("cashout_id", req.CashoutID),
		zap.String("ticket_id", req.TicketID),
		zap.String("status", reply.Content.Status),
	)
	writeJSON(w, http.StatusOK, dto.APIResponse{Success: true, Data: dto.NewCashoutResponse(reply)})
}

func (a *API) cashoutObserved(status string) {
	if a.OnCashout != nil {
		a.OnCashout(status)
	}
}

// health não tem efeitos colaterais; só reporta o estado do downstream
func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	ds := "disconnected"
	if a.Downstream != nil && a.Downstream() {
		ds = "connected"
	}
	writeJSON(w, http.StatusOK, dto.HealthResponse{
		Status:     "healthy",
		Service:    a.Service,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Downstream: ds,
	})
}

func (a *API) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": a.Service,
		"endpoints": []string{
			"POST /api/bets/single",
			"POST /api/bets/accumulator",
			"POST /api/bets/system",
			"POST /api/bets/banker-system",
			"POST /api/bets/preset",
			"POST /api/bets/multi",
			"GET /api/tickets/{ticketId}",
			"POST /api/cashout",
			"GET /health",
			"GET /ws?userId=&token=",
		},
	})
}
