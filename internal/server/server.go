// Package server exposes the import, reconciliation, and query operations
// over HTTP. Handlers stay thin: decode, delegate, encode. All business rules
// live in the statement, ledger, reconcile, and forecast packages.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cleared-dev/fluxo/internal/erp"
	"github.com/cleared-dev/fluxo/internal/forecast"
	"github.com/cleared-dev/fluxo/internal/ledger"
	"github.com/cleared-dev/fluxo/internal/model"
	"github.com/cleared-dev/fluxo/internal/reconcile"
	"github.com/cleared-dev/fluxo/internal/statement"
)

// Server wires the HTTP routes to the core services.
type Server struct {
	normalizer *statement.Normalizer
	ledger     *ledger.Service
	matcher    *reconcile.Matcher
	forecaster *forecast.Forecaster
	log        *logrus.Logger
}

// New creates a Server.
func New(normalizer *statement.Normalizer, ledgerSvc *ledger.Service, matcher *reconcile.Matcher, forecaster *forecast.Forecaster, log *logrus.Logger) *Server {
	return &Server{
		normalizer: normalizer,
		ledger:     ledgerSvc,
		matcher:    matcher,
		forecaster: forecaster,
		log:        log,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/v1/statements/import", s.handleImportStatements).Methods("POST")
	r.HandleFunc("/v1/sales/import", s.handleImportSales).Methods("POST")
	r.HandleFunc("/v1/reconcile", s.handleReconcile).Methods("POST")
	r.HandleFunc("/v1/predictions", s.handleListPredictions).Methods("GET")
	r.HandleFunc("/v1/installments", s.handleListInstallments).Methods("GET")
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type matchPayload struct {
	InstallmentID string  `json:"installmentId"`
	TransactionID string  `json:"transactionId"`
	Confidence    string  `json:"confidence"`
	Score         float64 `json:"score"`
	DateDistance  int     `json:"dateDistanceDays"`
}

type importFailurePayload struct {
	ExternalID string `json:"externalId"`
	Message    string `json:"message"`
}

type reportPayload struct {
	Imported    int                    `json:"imported"`
	Skipped     int                    `json:"skipped"`
	Failed      []importFailurePayload `json:"failed,omitempty"`
	Applied     []matchPayload         `json:"applied"`
	Suggestions []matchPayload         `json:"suggestions"`
}

type statementImportResponse struct {
	reportPayload
	DroppedMarkers int                    `json:"droppedMarkers"`
	SkippedEntries int                    `json:"skippedEntries"`
	ParseErrors    []statement.ParseError `json:"parseErrors,omitempty"`
}

func (s *Server) handleImportStatements(w http.ResponseWriter, r *http.Request) {
	userID, walletID, ok := s.scope(w, r)
	if !ok {
		return
	}

	var entries []model.RawStatementEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding statement: %v", err))
		return
	}

	result := s.normalizer.Normalize(entries, userID, walletID)
	report, err := s.matcher.Run(result.Transactions, userID, walletID)
	if err != nil {
		s.log.Errorf("statement import failed: %v", err)
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	writeJSON(w, http.StatusOK, statementImportResponse{
		reportPayload:  toReportPayload(report),
		DroppedMarkers: result.Dropped,
		SkippedEntries: result.Skipped,
		ParseErrors:    result.Errors,
	})
}

type saleImportResponse struct {
	ledger.ImportResult
	RejectedSales []string `json:"rejectedSales,omitempty"`
}

func (s *Server) handleImportSales(w http.ResponseWriter, r *http.Request) {
	userID, walletID, ok := s.scope(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body")
		return
	}

	sales, parseErrs := erp.ParseBatch(body)
	if len(sales) == 0 && len(parseErrs) > 0 {
		writeError(w, http.StatusBadRequest, parseErrs[0].Error())
		return
	}

	var resp saleImportResponse
	for _, sale := range sales {
		res := s.ledger.ImportFromSale(sale, userID, walletID)
		resp.Imported += res.Imported
		resp.Updated += res.Updated
		resp.Skipped += res.Skipped
		resp.Errors = append(resp.Errors, res.Errors...)
	}
	for _, perr := range parseErrs {
		resp.RejectedSales = append(resp.RejectedSales, perr.Error())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	userID, walletID, ok := s.scope(w, r)
	if !ok {
		return
	}
	start, end, ok := s.window(w, r)
	if !ok {
		return
	}

	report, err := s.matcher.Rematch(userID, walletID, start, end)
	if err != nil {
		s.log.Errorf("reconcile failed: %v", err)
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, toReportPayload(report))
}

type predictionPayload struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	Probability   float64         `json:"probability"`
	InstallmentID string          `json:"installmentId,omitempty"`
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	walletID := r.URL.Query().Get("walletId") // empty means all wallets
	start, end, ok := s.window(w, r)
	if !ok {
		return
	}

	preds, err := s.forecaster.Generate(userID, start, end, walletID)
	if err != nil {
		s.log.Errorf("prediction query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	out := make([]predictionPayload, 0, len(preds))
	for _, p := range preds {
		out = append(out, predictionPayload{
			ID:            p.ID,
			Amount:        p.Amount,
			Type:          string(p.Type),
			Date:          p.Date.Format("2006-01-02"),
			Description:   p.Description,
			Probability:   p.Probability,
			InstallmentID: p.InstallmentID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type installmentPayload struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"orderId"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	InstallmentNumber int             `json:"installmentNumber"`
	TotalInstallments int             `json:"totalInstallments"`
	DueDate           string          `json:"dueDate"`
	Status            string          `json:"status"`
	TransactionID     string          `json:"transactionId,omitempty"`
}

func (s *Server) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	userID, walletID, ok := s.scope(w, r)
	if !ok {
		return
	}
	status := model.InstallmentStatus(r.URL.Query().Get("status"))

	insts, err := s.ledger.List(userID, walletID, status)
	if err != nil {
		s.log.Errorf("installment query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	out := make([]installmentPayload, 0, len(insts))
	for _, inst := range insts {
		out = append(out, installmentPayload{
			ID:                inst.ID,
			OrderID:           inst.OrderID,
			Description:       inst.Description,
			Amount:            inst.Amount,
			InstallmentNumber: inst.InstallmentNumber,
			TotalInstallments: inst.TotalInstallments,
			DueDate:           inst.DueDate.Format("2006-01-02"),
			Status:            string(inst.Status),
			TransactionID:     inst.TransactionID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// scope pulls the mandatory userId and walletId query parameters.
func (s *Server) scope(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID := r.URL.Query().Get("userId")
	walletID := r.URL.Query().Get("walletId")
	if userID == "" || walletID == "" {
		writeError(w, http.StatusBadRequest, "userId and walletId are required")
		return "", "", false
	}
	return userID, walletID, true
}

// window pulls the start/end query parameters, defaulting to the next 90 days.
func (s *Server) window(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -90)
	end := now.AddDate(0, 0, 90)

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		end = t
	}
	return start, end, true
}

func toReportPayload(report reconcile.Report) reportPayload {
	p := reportPayload{
		Imported:    report.Imported,
		Skipped:     report.Skipped,
		Applied:     make([]matchPayload, 0, len(report.Applied)),
		Suggestions: make([]matchPayload, 0, len(report.Suggestions)),
	}
	for _, f := range report.Failed {
		p.Failed = append(p.Failed, importFailurePayload{ExternalID: f.ExternalID, Message: f.Message})
	}
	for _, m := range report.Applied {
		p.Applied = append(p.Applied, toMatchPayload(m))
	}
	for _, m := range report.Suggestions {
		p.Suggestions = append(p.Suggestions, toMatchPayload(m))
	}
	return p
}

func toMatchPayload(m reconcile.Match) matchPayload {
	return matchPayload{
		InstallmentID: m.Installment.ID,
		TransactionID: m.Transaction.ID,
		Confidence:    string(m.Confidence),
		Score:         m.Score,
		DateDistance:  m.DateDistance,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
