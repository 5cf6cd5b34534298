package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/downstream"
	"github.com/radieske/mts-gateway/internal/gateway"
	"github.com/radieske/mts-gateway/internal/ticket"
)

type fakeGateway struct {
	submitted []*ticket.Ticket
	err       error
	statuses  map[string]string
}

func (f *fakeGateway) Submit(_ context.Context, req gateway.Request) ([]gateway.Envelope, error) {
	f.submitted = append(f.submitted, req.Tickets...)
	if f.err != nil {
		return nil, f.err
	}
	var envs []gateway.Envelope
	for _, t := range req.Tickets {
		env := gateway.Envelope{TicketID: t.ID(), Status: gateway.StatusAccepted, Signature: "sig-" + t.ID()}
		for _, sb := range t.SubBets() {
			env.SubBets = append(env.SubBets, gateway.SubBetStatus{Index: sb.Index, Status: gateway.StatusAccepted})
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func (f *fakeGateway) Status(_ context.Context, id string) (string, error) {
	if st, ok := f.statuses[id]; ok {
		return st, nil
	}
	return gateway.StatusNotFound, nil
}

func newAPI(gw *fakeGateway) http.Handler {
	a := &API{
		Log:        zap.NewNop(),
		Service:    "mts-service",
		Builder:    ticket.NewBuilder(),
		Gateway:    gw,
		Downstream: func() bool { return true },
	}
	return a.Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

const (
	stake     = `"stake":{"type":"cash","currency":"EUR","amount":"30","mode":"total"}`
	unitStake = `"stake":{"type":"cash","currency":"EUR","amount":"1.5","mode":"unit"}`
)

func sels(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = `{"productId":"3","eventId":"sr:match:` + string(rune('a'+i)) + `","marketId":"1","outcomeId":"1","odds":2.0}`
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestPlaceEveryShape(t *testing.T) {
	cases := []struct {
		path string
		body string
		legs int
	}{
		{"/api/bets/single", `{"ticketId":"S-1","selection":{"eventId":"e","odds":"1.9"},` + stake + `}`, 1},
		{"/api/bets/accumulator", `{"ticketId":"A-1","selections":` + sels(3) + `,` + stake + `}`, 1},
		{"/api/bets/system", `{"ticketId":"SY-1","size":[2],"selections":` + sels(3) + `,` + unitStake + `}`, 3},
		{"/api/bets/banker-system", `{"ticketId":"B-1","bankers":` + sels(1) + `,"size":[1],"selections":` + sels(3) + `,` + unitStake + `}`, 3},
		{"/api/bets/preset", `{"ticketId":"P-1","type":"yankee","selections":` + sels(4) + `,` + unitStake + `}`, 11},
		{"/api/bets/multi", `{"ticketId":"M-1","bets":[{"type":"single","selections":` + sels(1) + `,` + stake + `},{"type":"trixie","selections":` + sels(3) + `,` + unitStake + `}]}`, 5},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			gw := &fakeGateway{}
			rec, out := do(t, newAPI(gw), http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, true, out["success"])

			content := out["data"].(map[string]any)["content"].(map[string]any)
			assert.Equal(t, "ticket-reply", content["type"])
			assert.Equal(t, "accepted", content["status"])

			require.Len(t, gw.submitted, 1)
			assert.Equal(t, tc.legs, gw.submitted[0].LegCount())
		})
	}
}

func TestPlaceValidationFailure(t *testing.T) {
	gw := &fakeGateway{}
	body := `{"ticketId":"S-2","selection":{"eventId":"e","odds":0},` + stake + `}`
	rec, out := do(t, newAPI(gw), http.MethodPost, "/api/bets/single", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
	e := out["error"].(map[string]any)
	assert.Equal(t, float64(400), e["code"])
	assert.Equal(t, "Validation failed", e["message"])
	assert.True(t, strings.HasPrefix(e["details"].(string), "InvalidOdds: "))
	assert.Empty(t, gw.submitted)
}

func validationKind(t *testing.T, rec *httptest.ResponseRecorder, out map[string]any) string {
	t.Helper()
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	details := out["error"].(map[string]any)["details"].(string)
	kind, _, _ := strings.Cut(details, ":")
	return kind
}

func TestAccumulatorWithOneSelectionIsRejected(t *testing.T) {
	gw := &fakeGateway{}
	rec, out := do(t, newAPI(gw), http.MethodPost, "/api/bets/accumulator", `{"ticketId":"A-2","selections":`+sels(1)+`,`+stake+`}`)

	assert.Equal(t, "InsufficientSelections", validationKind(t, rec, out))
	assert.Empty(t, gw.submitted)
}

func TestSystemStakeModeThenResubmit(t *testing.T) {
	gw := &fakeGateway{}
	h := newAPI(gw)

	rec, out := do(t, h, http.MethodPost, "/api/bets/system", `{"ticketId":"SY-2","size":[2],"selections":`+sels(3)+`,`+stake+`}`)
	assert.Equal(t, "InvalidStakeMode", validationKind(t, rec, out))
	assert.Empty(t, gw.submitted)

	rec, _ = do(t, h, http.MethodPost, "/api/bets/system", `{"ticketId":"SY-2","size":[2],"selections":`+sels(3)+`,`+unitStake+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, gw.submitted, 1)
	assert.Equal(t, 3, gw.submitted[0].LegCount())
}

func TestMultiRuleOrder(t *testing.T) {
	zeroOdds := `[{"eventId":"e1","odds":0},{"eventId":"e2","odds":0}]`
	cases := []struct {
		name string
		body string
		want string
	}{
		{"ticket id first", `{"ticketId":"","bets":[{"type":"bogus","selections":` + sels(2) + `,` + stake + `}]}`, "MissingTicketId"},
		{"odds before arity", `{"ticketId":"M-2","bets":[{"type":"single","selections":` + zeroOdds + `,` + stake + `}]}`, "InvalidOdds"},
		{"unknown type", `{"ticketId":"M-3","bets":[{"type":"bogus","selections":` + sels(2) + `,` + stake + `}]}`, "UnsupportedShape"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{}
			rec, out := do(t, newAPI(gw), http.MethodPost, "/api/bets/multi", tc.body)
			assert.Equal(t, tc.want, validationKind(t, rec, out))
			assert.Empty(t, gw.submitted)
		})
	}
}

func TestPlaceMalformedBody(t *testing.T) {
	rec, out := do(t, newAPI(&fakeGateway{}), http.MethodPost, "/api/bets/system", `{"ticketId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", out["error"].(map[string]any)["message"])
}

func TestPlaceGatewayErrors(t *testing.T) {
	cases := map[gateway.Kind]int{
		gateway.KindDuplicateTicket:   http.StatusConflict,
		gateway.KindDownstreamTimeout: http.StatusGatewayTimeout,
		gateway.KindTransportFailure:  http.StatusBadGateway,
	}
	for kind, status := range cases {
		gw := &fakeGateway{err: &gateway.Error{Kind: kind, TicketID: "S-3", Message: "x"}}
		body := `{"ticketId":"S-3","selection":{"eventId":"e","odds":1.5},` + stake + `}`
		rec, _ := do(t, newAPI(gw), http.MethodPost, "/api/bets/single", body)
		assert.Equal(t, status, rec.Code, string(kind))
	}
}

func TestTicketStatus(t *testing.T) {
	h := newAPI(&fakeGateway{statuses: map[string]string{"T-1": "pending"}})

	rec, out := do(t, h, http.MethodGet, "/api/tickets/T-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", out["data"].(map[string]any)["status"])

	rec, _ = do(t, h, http.MethodGet, "/api/tickets/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec, out := do(t, newAPI(&fakeGateway{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "mts-service", out["service"])
	assert.Equal(t, "connected", out["downstream"])
	assert.NotEmpty(t, out["timestamp"])
}

type fakeCashouts struct {
	mu    sync.Mutex
	sent  []downstream.CashoutRequest
	acked []string
	reply func(downstream.CashoutRequest) (downstream.CashoutReply, error)
}

func (f *fakeCashouts) Cashout(_ context.Context, req downstream.CashoutRequest) (downstream.CashoutReply, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	return f.reply(req)
}

func (f *fakeCashouts) AckCashout(_ context.Context, r downstream.CashoutReply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, r.Content.CashoutID)
	return nil
}

func (f *fakeCashouts) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked)
}

func cashoutAPI(c *fakeCashouts) http.Handler {
	a := &API{Log: zap.NewNop(), Service: "mts-service", Builder: ticket.NewBuilder(), Gateway: &fakeGateway{}, Cashouts: c}
	return a.Router()
}

func TestCashoutForwardsAndAcks(t *testing.T) {
	c := &fakeCashouts{reply: func(req downstream.CashoutRequest) (downstream.CashoutReply, error) {
		return downstream.CashoutReply{CorrelationID: req.CorrelationID, Content: downstream.CashoutReplyContent{
			CashoutID: req.Content.Cashout.CashoutID, TicketID: req.Content.Cashout.Details.TicketID,
			Status: downstream.StatusAccepted, Signature: "co-sig",
		}}, nil
	}}
	body := `{"cashoutId":"C-1","ticketId":"T-1","ticketSignature":"sig-T-1","type":"ticket-partial","code":100,
		"percentage":"0.5","payout":[{"type":"cash","currency":"eur","amount":4.5}]}`

	rec, out := do(t, cashoutAPI(c), http.MethodPost, "/api/cashout", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := out["data"].(map[string]any)
	assert.Equal(t, "C-1", data["cashoutId"])
	assert.Equal(t, "accepted", data["status"])

	require.Len(t, c.sent, 1)
	d := c.sent[0].Content.Cashout.Details
	assert.Equal(t, downstream.OpCashoutInform, c.sent[0].Operation)
	assert.Equal(t, "0.5", d.Percentage)
	assert.Equal(t, "EUR", d.Payout[0].Currency)
	assert.Equal(t, "4.5", d.Payout[0].Amount)
	assert.Eventually(t, func() bool { return c.ackCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestCashoutValidation(t *testing.T) {
	c := &fakeCashouts{}
	cases := map[string]string{
		"cashoutId is required":           `{"ticketId":"T","ticketSignature":"s","type":"ticket","code":1,"payout":[{"type":"cash","currency":"EUR","amount":1}]}`,
		"invalid type: full":              `{"cashoutId":"C","ticketId":"T","ticketSignature":"s","type":"full","code":1,"payout":[{"type":"cash","currency":"EUR","amount":1}]}`,
		"percentage is required":          `{"cashoutId":"C","ticketId":"T","ticketSignature":"s","type":"bet-partial","betId":"T-0","code":1,"payout":[{"type":"cash","currency":"EUR","amount":1}]}`,
		"betId is required":               `{"cashoutId":"C","ticketId":"T","ticketSignature":"s","type":"bet","code":1,"payout":[{"type":"cash","currency":"EUR","amount":1}]}`,
		"payout[0].amount must be":        `{"cashoutId":"C","ticketId":"T","ticketSignature":"s","type":"ticket","code":1,"payout":[{"type":"cash","currency":"EUR","amount":0}]}`,
		"at least one payout is required": `{"cashoutId":"C","ticketId":"T","ticketSignature":"s","type":"ticket","code":1}`,
	}
	for want, body := range cases {
		rec, out := do(t, cashoutAPI(c), http.MethodPost, "/api/cashout", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, want)
		e := out["error"].(map[string]any)
		assert.Equal(t, "Validation failed", e["message"])
		assert.Contains(t, e["details"], want)
	}
	assert.Empty(t, c.sent)
}

func TestCashoutDownstreamFailures(t *testing.T) {
	cases := map[error]int{
		downstream.ErrNotConnected:   http.StatusBadGateway,
		downstream.ErrReplyTimeout:   http.StatusGatewayTimeout,
		downstream.ErrConnectionLost: http.StatusGatewayTimeout,
	}
	body := `{"cashoutId":"C-2","ticketId":"T-2","ticketSignature":"s","type":"ticket","code":100,"payout":[{"type":"cash","currency":"EUR","amount":"2"}]}`
	for cause, status := range cases {
		c := &fakeCashouts{reply: func(downstream.CashoutRequest) (downstream.CashoutReply, error) {
			return downstream.CashoutReply{}, cause
		}}
		rec, _ := do(t, cashoutAPI(c), http.MethodPost, "/api/cashout", body)
		assert.Equal(t, status, rec.Code, cause.Error())
		assert.Zero(t, c.ackCount())
	}
}

func TestCashoutRouteNeedsClient(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cashout", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	newAPI(&fakeGateway{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
