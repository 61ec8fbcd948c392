// Package server exposes the balance and cube APIs over HTTP/JSON.
package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"FinSight/internal/balance"
	"FinSight/internal/cube"
	"FinSight/internal/ledger"
	"FinSight/internal/observability"
)

// Deps holds everything the handlers need.
type Deps struct {
	Balances *balance.Service
	Cube     *cube.Engine
	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Log      zerolog.Logger
}

type server struct {
	deps Deps
}

// RegisterAPI registers all routes onto the provided mux.
func RegisterAPI(mux *http.ServeMux, deps Deps) {
	srv := &server{deps: deps}

	mux.HandleFunc("GET /api/balance", srv.instrument("balance", srv.balanceAsOf))
	mux.HandleFunc("GET /api/balance/history", srv.instrument("balance_history", srv.balanceHistory))
	mux.HandleFunc("GET /api/transactions/balances", srv.instrument("running_balances", srv.runningBalances))
	mux.HandleFunc("POST /api/cube/populate", srv.instrument("cube_populate", srv.cubePopulate))
	mux.HandleFunc("POST /api/cube/rebuild", srv.instrument("cube_rebuild", srv.cubeRebuild))
	mux.HandleFunc("POST /api/cube/clear", srv.instrument("cube_clear", srv.cubeClear))
	mux.HandleFunc("GET /api/cube/stats", srv.instrument("cube_stats", srv.cubeStats))

	if deps.Health != nil {
		mux.HandleFunc("GET /healthz", deps.Health.LivenessHandler)
		mux.HandleFunc("GET /readyz", deps.Health.ReadinessHandler)
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) *apiErr

// instrument wraps a handler with request metrics and error rendering.
func (s *server) instrument(endpoint string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := "ok"

		if err := h(w, r); err != nil {
			status = "error"
			if err.Status >= 500 {
				s.deps.Log.Error().Str("endpoint", endpoint).Str("msg", err.Message).Msg("request failed")
			}
			writeErr(w, err)
		}

		if s.deps.Metrics != nil {
			s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
			s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

// --- balance handlers ---

type balanceResponse struct {
	Balance               string          `json:"balance"`
	Method                balance.Method  `json:"calculation_method"`
	AnchorUsed            *anchorResponse `json:"anchor_used,omitempty"`
	TransactionsProcessed int             `json:"transactions_processed"`
}

type anchorResponse struct {
	ID         int64  `json:"id"`
	Balance    string `json:"balance"`
	AnchorDate string `json:"anchor_date"`
}

func encodeAnchor(a *ledger.BalanceAnchor) *anchorResponse {
	if a == nil {
		return nil
	}
	return &anchorResponse{
		ID:         a.ID,
		Balance:    a.Balance.StringFixed(2),
		AnchorDate: a.AnchorDate.Format("2006-01-02"),
	}
}

func (s *server) balanceAsOf(w http.ResponseWriter, r *http.Request) *apiErr {
	tenantID, aerr := requireTenant(r)
	if aerr != nil {
		return aerr
	}
	accountID, aerr := requireAccount(r)
	if aerr != nil {
		return aerr
	}
	date, aerr := requireDate(r, "date")
	if aerr != nil {
		return aerr
	}

	result, err := s.deps.Balances.BalanceAsOf(r.Context(), tenantID, accountID, date)
	if err != nil {
		return toAPIErr(err)
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.BalanceMethod.WithLabelValues(string(result.Method)).Inc()
	}

	writeOK(w, balanceResponse{
		Balance:               result.Balance.StringFixed(2),
		Method:                result.Method,
		AnchorUsed:            encodeAnchor(result.AnchorUsed),
		TransactionsProcessed: result.TransactionsProcessed,
	})
	return nil
}

type historyPointResponse struct {
	Date       string          `json:"date"`
	Balance    string          `json:"balance"`
	NetAmount  string          `json:"net_amount"`
	Method     balance.Method  `json:"calculation_method"`
	AnchorUsed *anchorResponse `json:"anchor_used,omitempty"`
}

func (s *server) balanceHistory(w http.ResponseWriter, r *http.Request) *apiErr {
	tenantID, aerr := requireTenant(r)
	if aerr != nil {
		return aerr
	}
	accountID, aerr := requireAccount(r)
	if aerr != nil {
		return aerr
	}
	start, aerr := requireDate(r, "start_date")
	if aerr != nil {
		return aerr
	}
	end, aerr := requireDate(r, "end_date")
	if aerr != nil {
		return aerr
	}

	points, err := s.deps.Balances.History(r.Context(), tenantID, accountID, start, end)
	if err != nil {
		return toAPIErr(err)
	}

	out := make([]historyPointResponse, len(points))
	for i, p := range points {
		out[i] = historyPointResponse{
			Date:       p.Date.Format("2006-01-02"),
			Balance:    p.Balance.StringFixed(2),
			NetAmount:  p.NetAmount.StringFixed(2),
			Method:     p.Method,
			AnchorUsed: encodeAnchor(p.AnchorUsed),
		}
	}
	writeOK(w, out)
	return nil
}

type runningBalanceResponse struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	CategoryID  *int64 `json:"category_id,omitempty"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	IsRecurring bool   `json:"is_recurring"`
	Description string `json:"description,omitempty"`
	Balance     string `json:"balance"`
}

func (s *server) runningBalances(w http.ResponseWriter, r *http.Request) *apiErr {
	tenantID, aerr := requireTenant(r)
	if aerr != nil {
		return aerr
	}
	accountID, aerr := requireAccount(r)
	if aerr != nil {
		return aerr
	}
	from, aerr := optionalDate(r, "start_date")
	if aerr != nil {
		return aerr
	}
	to, aerr := optionalDate(r, "end_date")
	if aerr != nil {
		return aerr
	}

	order := balance.Ascending
	switch r.URL.Query().Get("order") {
	case "", "asc":
	case "desc":
		order = balance.Descending
	default:
		return badRequest("order must be asc or desc")
	}

	results, err := s.deps.Balances.TransactionsWithRunningBalance(r.Context(), tenantID, accountID, balance.RangeQuery{
		From:  from,
		To:    to,
		Order: order,
	})
	if err != nil {
		return toAPIErr(err)
	}

	out := make([]runningBalanceResponse, len(results))
	for i, tx := range results {
		out[i] = runningBalanceResponse{
			ID:          tx.ID,
			AccountID:   tx.AccountID,
			CategoryID:  tx.CategoryID,
			Amount:      tx.Amount.StringFixed(2),
			Date:        tx.Date.Format("2006-01-02"),
			Type:        string(tx.Type),
			IsRecurring: tx.IsRecurring,
			Description: tx.Description,
			Balance:     tx.Balance.StringFixed(2),
		}
	}
	writeOK(w, out)
	return nil
}

// --- cube handlers ---

type cubeRangeRequest struct {
	TenantID  string `json:"tenant_id"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type regenerationResponse struct {
	Updated int      `json:"updated"`
	Failed  []string `json:"failed,omitempty"`
}

func encodeReport(rep cube.Report) regenerationResponse {
	out := regenerationResponse{Updated: rep.Updated}
	for _, f := range rep.Failed {
		out.Failed = append(out.Failed, f.Target.Key())
	}
	return out
}

func (s *server) cubePopulate(w http.ResponseWriter, r *http.Request) *apiErr {
	var req cubeRangeRequest
	if aerr := readJSON(r, &req); aerr != nil {
		return aerr
	}
	tenantID, aerr := parseTenantField(req.TenantID)
	if aerr != nil {
		return aerr
	}
	from, aerr := parseBodyDate(req.StartDate, "start_date")
	if aerr != nil {
		return aerr
	}
	to, aerr := parseBodyDate(req.EndDate, "end_date")
	if aerr != nil {
		return aerr
	}

	report, err := s.deps.Cube.Populate(r.Context(), tenantID, from, to)
	if err != nil {
		return toAPIErr(err)
	}
	writeOK(w, encodeReport(report))
	return nil
}

func (s *server) cubeRebuild(w http.ResponseWriter, r *http.Request) *apiErr {
	var req cubeRangeRequest
	if aerr := readJSON(r, &req); aerr != nil {
		return aerr
	}
	tenantID, aerr := parseTenantField(req.TenantID)
	if aerr != nil {
		return aerr
	}
	from, aerr := parseBodyDate(req.StartDate, "start_date")
	if aerr != nil {
		return aerr
	}
	to, aerr := parseBodyDate(req.EndDate, "end_date")
	if aerr != nil {
		return aerr
	}
	if from == nil || to == nil {
		return badRequest("rebuild requires start_date and end_date")
	}

	report, err := s.deps.Cube.Rebuild(r.Context(), tenantID, *from, *to)
	if err != nil {
		return toAPIErr(err)
	}
	writeOK(w, encodeReport(report))
	return nil
}

func (s *server) cubeClear(w http.ResponseWriter, r *http.Request) *apiErr {
	var req struct {
		TenantID string `json:"tenant_id"`
		Confirm  bool   `json:"confirm"`
	}
	if aerr := readJSON(r, &req); aerr != nil {
		return aerr
	}
	tenantID, aerr := parseTenantField(req.TenantID)
	if aerr != nil {
		return aerr
	}
	if !req.Confirm {
		return badRequest("clear is destructive; set confirm=true to proceed")
	}

	if err := s.deps.Cube.Clear(r.Context(), tenantID); err != nil {
		return toAPIErr(err)
	}
	writeOK(w, map[string]any{"cleared": true})
	return nil
}

func (s *server) cubeStats(w http.ResponseWriter, r *http.Request) *apiErr {
	tenantID, aerr := requireTenant(r)
	if aerr != nil {
		return aerr
	}

	stats, err := s.deps.Cube.Stats(r.Context(), tenantID)
	if err != nil {
		return toAPIErr(err)
	}
	writeOK(w, stats)
	return nil
}
