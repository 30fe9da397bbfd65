package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cafepos/internal/ai"
	"cafepos/internal/app"
	"cafepos/internal/core"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc   app.ApplicationService
	agent *ai.Agent // nil when no API key is configured
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, agent *ai.Agent, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc, agent: agent}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireActor)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// Sales
		r.Post("/api/sales", h.openSale)
		r.Get("/api/sales/{id}", h.getSale)
		r.Post("/api/sales/{id}/items", h.addSaleItems)
		r.Post("/api/sales/{id}/close", h.closeSale)
		r.Post("/api/sales/{id}/cancel", h.cancelSale)
		r.Post("/api/sales/{id}/invoice", h.initiateInvoice)

		// Invoices & payments
		r.Get("/api/invoices/{id}", h.getInvoice)
		r.Post("/api/invoices/{id}/payments", h.processPayment)
		r.Post("/api/invoices/{id}/cancel", h.cancelInvoice)
		r.Post("/api/payments/{id}/refunds", h.refund)

		// Purchasing
		r.Post("/api/purchases", h.recordPurchase)
		r.Post("/api/purchase-items/{id}/returns", h.returnPurchaseItem)

		// Production & stock
		r.Post("/api/productions", h.produceItem)
		r.Post("/api/products/{id}/adjustments", h.adjustStock)

		// Reporting
		r.Post("/api/reports/daily", h.dailyReport)
		r.Get("/api/reports/daily/{date}", h.getDailyReport)
		r.Get("/api/reports/daily/{date}/summary", h.dailySummary)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func urlParamInt(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	return id, err == nil && id > 0
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, "malformed JSON body: "+err.Error(), "INVALID_INPUT", http.StatusBadRequest)
		return false
	}
	return true
}

// ── Sales ────────────────────────────────────────────────────────────────────

func (h *Handler) openSale(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	var req app.OpenSaleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sale, err := h.svc.OpenSale(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, sale)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid sale id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	sale, err := h.svc.GetSale(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, sale)
}

func (h *Handler) addSaleItems(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid sale id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	var req struct {
		Items []core.SaleItemInput `json:"items"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sale, err := h.svc.AddSaleItems(r.Context(), actor, id, req.Items)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, sale)
}

func (h *Handler) closeSale(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid sale id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	sale, err := h.svc.CloseSale(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, sale)
}

func (h *Handler) cancelSale(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid sale id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	sale, err := h.svc.CancelSale(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, sale)
}

// ── Invoices & payments ──────────────────────────────────────────────────────

func (h *Handler) initiateInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid sale id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	var req struct {
		DiscountAmount decimal.Decimal  `json:"discount_amount"`
		TaxAmount      *decimal.Decimal `json:"tax_amount,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	invoice, err := h.svc.InitiateInvoice(r.Context(), actor, app.InitiateInvoiceRequest{
		SaleID:         id,
		DiscountAmount: req.DiscountAmount,
		TaxAmount:      req.TaxAmount,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid invoice id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	invoice, err := h.svc.GetInvoice(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid invoice id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	var req app.ProcessPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.InvoiceID = id
	payment, err := h.svc.ProcessPayment(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid invoice id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	invoice, err := h.svc.CancelInvoice(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid payment id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	var req app.RefundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.PaymentID = id
	refund, err := h.svc.Refund(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, refund)
}

// ── Purchasing, production, stock ────────────────────────────────────────────

func (h *Handler) recordPurchase(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	var req app.RecordPurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	invoice, err := h.svc.RecordPurchase(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) returnPurchaseItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid purchase item id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	var req struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ret, err := h.svc.ReturnPurchaseItem(r.Context(), actor, id, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, ret)
}

func (h *Handler) produceItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	var req app.ProduceItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	production, err := h.svc.ProduceItem(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, production)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)
	id, ok := urlParamInt(r, "id")
	if !ok {
		writeError(w, r, "invalid product id", "INVALID_INPUT", http.StatusBadRequest)
		return
	}
	var req struct {
		CurrentQuantity decimal.Decimal `json:"current_quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := h.svc.AdjustStock(r.Context(), actor, id, req.CurrentQuantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if report == nil {
		writeJSON(w, map[string]string{"status": "unchanged"})
		return
	}
	writeJSON(w, report)
}

// ── Reporting ────────────────────────────────────────────────────────────────

func (h *Handler) dailyReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReportDate string              `json:"report_date"`
		Reported   core.ReportedTotals `json:"reported"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := h.svc.DailyReport(r.Context(), req.ReportDate, req.Reported)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, report)
}

func (h *Handler) getDailyReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetDailyReport(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, report)
}

func (h *Handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	if h.agent == nil {
		writeError(w, r, "day summary is not configured", "NOT_CONFIGURED", http.StatusServiceUnavailable)
		return
	}
	report, err := h.svc.GetDailyReport(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	summary, err := h.agent.SummarizeDay(r.Context(), report)
	if err != nil {
		writeError(w, r, "failed to generate summary: "+err.Error(), "AI_ERROR", http.StatusBadGateway)
		return
	}
	writeJSON(w, summary)
}
