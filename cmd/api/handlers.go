package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/document"
	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/issuance"
	"github.com/safar/dealership/internal/models"
	"github.com/safar/dealership/internal/opportunity"
	"github.com/safar/dealership/internal/store"
)

// catalog is the read side the handlers use directly.
type catalog interface {
	CreateOpportunity(ctx context.Context, o models.Opportunity) (*models.Opportunity, error)
	GetOpportunity(ctx context.Context, id int64) (*models.Opportunity, error)
	ListOpportunitiesCursor(ctx context.Context, state models.OpportunityState, cursor string, limit int) (*store.CursorPage, error)
	ListInvoices(ctx context.Context, status models.InvoiceStatus, page, pageSize int) (*store.OffsetPage, error)
}

type server struct {
	catalog       catalog
	machine       *opportunity.Machine
	contracts     *issuance.ContractService
	invoices      *issuance.InvoiceService
	sales         *issuance.SaleService
	renderTimeout time.Duration
	log           zerolog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /opportunities", s.handleCreateOpportunity)
	mux.HandleFunc("GET /opportunities", s.handleListOpportunities)
	mux.HandleFunc("GET /opportunities/{id}", s.handleGetOpportunity)
	mux.HandleFunc("POST /opportunities/{id}/transition", s.handleTransition)
	mux.HandleFunc("POST /opportunities/{id}/reactivate", s.handleReactivate)
	mux.HandleFunc("POST /opportunities/{id}/quote", s.handleQuote)
	mux.HandleFunc("POST /opportunities/{id}/close", s.handleCloseSale)
	mux.HandleFunc("GET /sales/{id}/document", s.handleSaleDocument)

	mux.HandleFunc("POST /contracts", s.handleCreateContract)
	mux.HandleFunc("GET /contracts/{id}", s.handleGetContract)
	mux.HandleFunc("POST /contracts/{id}/sign", s.handleSignContract)
	mux.HandleFunc("POST /contracts/{id}/cancel", s.handleCancelContract)
	mux.HandleFunc("GET /contracts/{id}/document", s.handleContractDocument)

	mux.HandleFunc("POST /invoices", s.handleCreateInvoice)
	mux.HandleFunc("GET /invoices", s.handleListInvoices)
	mux.HandleFunc("GET /invoices/{id}", s.handleGetInvoice)
	mux.HandleFunc("POST /invoices/{id}/pay", s.handlePayInvoice)
	mux.HandleFunc("POST /invoices/{id}/cancel", s.handleCancelInvoice)
	mux.HandleFunc("POST /invoices/refresh-overdue", s.handleRefreshOverdue)
	mux.HandleFunc("GET /invoices/{id}/document", s.handleInvoiceDocument)
	mux.HandleFunc("GET /vehicles/{id}/invoice-draft", s.handleInvoiceDraft)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withRequestID(s.log, mux)
}

func (s *server) handleCreateOpportunity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerID   int64  `json:"buyer_id"`
		VehicleID *int64 `json:"vehicle_id,omitempty"`
		Priority  string `json:"priority,omitempty"`
		Notes     string `json:"notes,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.BuyerID == 0 {
		respondError(w, r, apperr.NewValidationError("buyer_id", "required"))
		return
	}

	opp, err := s.catalog.CreateOpportunity(r.Context(), models.Opportunity{
		BuyerID:   req.BuyerID,
		VehicleID: req.VehicleID,
		Priority:  req.Priority,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(w, r, apperr.Persistence("create opportunity", err))
		return
	}
	respondJSON(w, r, http.StatusCreated, opp)
}

func (s *server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	state := models.OpportunityState(r.URL.Query().Get("state"))
	if state != "" && !state.Valid() {
		respondError(w, r, apperr.NewValidationError("state", "invalid"))
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	page, err := s.catalog.ListOpportunitiesCursor(r.Context(), state, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

func (s *server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	opp, err := s.catalog.GetOpportunity(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, opp)
}

func (s *server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		To models.OpportunityState `json:"to"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	opp, err := s.machine.Transition(r.Context(), id, req.To)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, opp)
}

func (s *server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	opp, err := s.machine.Reactivate(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, opp)
}

type saleRequest struct {
	VehicleID int64                      `json:"vehicle_id,omitempty"`
	Pricing   finance.Pricing            `json:"pricing"`
	Payment   *opportunity.PaymentInput  `json:"payment,omitempty"`
	Delivery  *opportunity.DeliveryInput `json:"delivery,omitempty"`
}

type quoteResponse struct {
	Figures   finance.SaleFigures    `json:"figures"`
	Financing *finance.FinancingPlan `json:"financing,omitempty"`
}

// startWizard walks a wizard through the stages the request carries.
func (s *server) startWizard(r *http.Request, req saleRequest) (*opportunity.SaleWizard, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	wiz, err := s.machine.StartSale(r.Context(), id, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if _, err := wiz.SetPricing(req.Pricing); err != nil {
		return nil, err
	}
	if req.Payment != nil {
		if err := wiz.SetPayment(*req.Payment); err != nil {
			return nil, err
		}
	}
	if req.Delivery != nil {
		if err := wiz.SetDelivery(*req.Delivery); err != nil {
			return nil, err
		}
	}
	return wiz, nil
}

// handleQuote computes figures and the installment estimate without writing.
func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	req.Delivery = nil

	wiz, err := s.startWizard(r, req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := quoteResponse{Figures: wiz.Figures()}
	if plan, ok := wiz.Financing(); ok {
		resp.Financing = &plan
	}
	respondJSON(w, r, http.StatusOK, resp)
}

func (s *server) handleCloseSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Payment == nil {
		respondError(w, r, apperr.NewValidationError("payment", "required"))
		return
	}
	if req.Delivery == nil {
		respondError(w, r, apperr.NewValidationError("delivery", "required"))
		return
	}

	wiz, err := s.startWizard(r, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := wiz.Confirm(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, rec)
}

func (s *server) handleSaleDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.sendDocument(w, r, func(ctx context.Context) (*document.Artifact, error) {
		return s.sales.Render(ctx, id)
	})
}

func (s *server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var req issuance.ContractRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := s.contracts.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, c)
}

func (s *server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	s.contractAction(w, r, s.contracts.Get)
}

func (s *server) handleSignContract(w http.ResponseWriter, r *http.Request) {
	s.contractAction(w, r, s.contracts.Sign)
}

func (s *server) handleCancelContract(w http.ResponseWriter, r *http.Request) {
	s.contractAction(w, r, s.contracts.Cancel)
}

func (s *server) contractAction(w http.ResponseWriter, r *http.Request, action func(context.Context, int64) (*models.Contract, error)) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := action(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

func (s *server) handleContractDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.sendDocument(w, r, func(ctx context.Context) (*document.Artifact, error) {
		return s.contracts.Render(ctx, id)
	})
}

func (s *server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req issuance.InvoiceRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	inv, err := s.invoices.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, inv)
}

func (s *server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	status := models.InvoiceStatus(r.URL.Query().Get("status"))
	page, err := s.catalog.ListInvoices(r.Context(), status, queryInt(r, "page", 1), queryInt(r, "page_size", 20))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

func (s *server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	s.invoiceAction(w, r, s.invoices.Get)
}

func (s *server) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	s.invoiceAction(w, r, s.invoices.MarkPaid)
}

func (s *server) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	s.invoiceAction(w, r, s.invoices.Cancel)
}

func (s *server) invoiceAction(w http.ResponseWriter, r *http.Request, action func(context.Context, int64) (*models.Invoice, error)) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	inv, err := action(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, inv)
}

func (s *server) handleRefreshOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := s.invoices.RefreshOverdue(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]int64{"marked_overdue": n})
}

func (s *server) handleInvoiceDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.sendDocument(w, r, func(ctx context.Context) (*document.Artifact, error) {
		return s.invoices.Render(ctx, id)
	})
}

func (s *server) handleInvoiceDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	draft, err := s.invoices.PrefillFromVehicle(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, draft)
}

func (s *server) sendDocument(w http.ResponseWriter, r *http.Request, render func(context.Context) (*document.Artifact, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.renderTimeout)
	defer cancel()

	a, err := render(ctx)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(a.Data); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("file", a.Name).Msg("write document")
	}
}
