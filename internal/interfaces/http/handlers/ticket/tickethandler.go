// Package ticket serves the console's tickets and line items over HTTP.
// Reads come from the entity store; writes go through the optimistic
// mutation tracker and the bulk insert sequencer.
package ticket

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warehouse-ops/ntconsole/internal/application/reconcile"
	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
	"github.com/warehouse-ops/ntconsole/internal/shared/errors"
	"github.com/warehouse-ops/ntconsole/internal/shared/goroutine"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
	"github.com/warehouse-ops/ntconsole/internal/shared/utils"
)

// Mutator issues local-first writes.
type Mutator interface {
	CreateTicket(ctx context.Context, drafts []ticket.LineItemDraft) (*ticket.Ticket, []*ticket.LineItem, error)
	CreateLineItem(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error)
	UpdateLineItemStatus(ctx context.Context, itemID string, status vo.PaymentStatus) (*ticket.LineItem, error)
	DeleteLineItem(ctx context.Context, itemID string) error
	DeleteTicket(ctx context.Context, ticketID string) error
	Pending() []reconcile.PendingMutation
}

// BulkInserter runs a bulk insert to completion.
type BulkInserter interface {
	Enqueue(ctx context.Context, ticketID string, drafts []ticket.LineItemDraft) (*reconcile.BatchResult, error)
	Busy() bool
}

// Reader is the read side of the entity store.
type Reader interface {
	Ticket(id string) (*ticket.Ticket, bool)
	Tickets() []*ticket.Ticket
	LineItem(id string) (*ticket.LineItem, bool)
	LineItems(ticketID string) []*ticket.LineItem
	AllLineItems() []*ticket.LineItem
}

type TicketHandler struct {
	mutator Mutator
	bulk    BulkInserter
	reader  Reader
	now     func() time.Time
	logger  logger.Interface

	// baseCtx outlives the request that started a bulk insert.
	baseCtx context.Context
	bg      sync.WaitGroup
}

func NewTicketHandler(
	baseCtx context.Context,
	mutator Mutator,
	bulk BulkInserter,
	reader Reader,
	log logger.Interface,
) *TicketHandler {
	return &TicketHandler{
		mutator: mutator,
		bulk:    bulk,
		reader:  reader,
		now:     biztime.NowUTC,
		logger:  log.With("component", "ticket_handler"),
		baseCtx: baseCtx,
	}
}

// SetClock replaces the time source used for temporal facts.
func (h *TicketHandler) SetClock(now func() time.Time) {
	h.now = now
}

// Wait blocks until every bulk insert started by the handler has returned.
func (h *TicketHandler) Wait() {
	h.bg.Wait()
}

// ListTickets handles GET /tickets
// @Summary List tickets
// @Description List every ticket in the local store, provisional ones included
// @Tags tickets
// @Produce json
// @Success 200 {object} utils.APIResponse{data=utils.ListData{items=[]TicketView}}
// @Router /tickets [get]
func (h *TicketHandler) ListTickets(c *gin.Context) {
	tickets := h.reader.Tickets()
	views := make([]TicketView, len(tickets))
	for i, t := range tickets {
		views[i] = TicketView{Ticket: t, Provisional: isProvisional(t.ID)}
	}
	utils.ListSuccessResponse(c, views, len(views))
}

// GetTicket handles GET /tickets/:id
// @Summary Get a ticket
// @Description Get a ticket together with its line items and their time facts
// @Tags tickets
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} utils.APIResponse{data=TicketView}
// @Failure 404 {object} utils.APIResponse
// @Router /tickets/{id} [get]
func (h *TicketHandler) GetTicket(c *gin.Context) {
	ticketID, err := parseEntityID(c, "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	t, ok := h.reader.Ticket(ticketID)
	if !ok {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("ticket not found", ticketID))
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", TicketView{
		Ticket:      t,
		Provisional: isProvisional(t.ID),
		Items:       h.itemViews(h.reader.LineItems(t.ID), h.now()),
	})
}

// ListLineItems handles GET /tickets/:id/items
// @Summary List line items of a ticket
// @Description List the line items of a ticket with their shift, deadline and overdue facts
// @Tags line-items
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} utils.APIResponse{data=utils.ListData{items=[]LineItemView}}
// @Failure 404 {object} utils.APIResponse
// @Router /tickets/{id}/items [get]
func (h *TicketHandler) ListLineItems(c *gin.Context) {
	ticketID, err := parseEntityID(c, "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if _, ok := h.reader.Ticket(ticketID); !ok {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("ticket not found", ticketID))
		return
	}

	views := h.itemViews(h.reader.LineItems(ticketID), h.now())
	utils.ListSuccessResponse(c, views, len(views))
}

// ListOverdue handles GET /items/overdue, longest overdue first.
// @Summary List overdue line items
// @Description List line items past their deadline, longest overdue first
// @Tags line-items
// @Produce json
// @Success 200 {object} utils.APIResponse{data=utils.ListData{items=[]LineItemView}}
// @Router /items/overdue [get]
func (h *TicketHandler) ListOverdue(c *gin.Context) {
	now := h.now()
	var views []LineItemView
	for _, view := range h.itemViews(h.reader.AllLineItems(), now) {
		if view.Facts != nil && view.Facts.Overdue {
			views = append(views, view)
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Facts.OverdueMinutes > views[j].Facts.OverdueMinutes
	})
	if views == nil {
		views = []LineItemView{}
	}
	utils.ListSuccessResponse(c, views, len(views))
}

// CurrentShift handles GET /shifts/current
// @Summary Current shift
// @Description Shift number, business date and time of day right now
// @Tags shifts
// @Produce json
// @Success 200 {object} utils.APIResponse{data=CurrentShiftResponse}
// @Router /shifts/current [get]
func (h *TicketHandler) CurrentShift(c *gin.Context) {
	now := h.now()
	utils.SuccessResponse(c, http.StatusOK, "", CurrentShiftResponse{
		Shift: biztime.AssignShift(now),
		Date:  biztime.FormatDate(now),
		Time:  biztime.FormatTimeOfDay(now),
	})
}

// ListPending handles GET /pending
// @Summary List in-flight mutations
// @Description List local writes still waiting for their feed echo, with expiry
// @Tags pending
// @Produce json
// @Success 200 {object} utils.APIResponse{data=utils.ListData{items=[]PendingMutationView}}
// @Router /pending [get]
func (h *TicketHandler) ListPending(c *gin.Context) {
	views := toPendingViews(h.mutator.Pending())
	utils.ListSuccessResponse(c, views, len(views))
}

// CreateTicket handles POST /tickets
// @Summary Create a ticket
// @Description Create a ticket with its initial line items. The response carries the confirmed entities.
// @Tags tickets
// @Accept json
// @Produce json
// @Param request body CreateTicketRequest true "Initial line items"
// @Success 201 {object} utils.APIResponse{data=TicketView}
// @Failure 400 {object} utils.APIResponse
// @Failure 502 {object} utils.APIResponse
// @Router /tickets [post]
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for create ticket", "error", err)
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("Invalid request body", err.Error()))
		return
	}

	t, items, err := h.mutator.CreateTicket(c.Request.Context(), toDrafts(req.Items))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, TicketView{
		Ticket: t,
		Items:  h.itemViews(items, h.now()),
	}, "Ticket created successfully")
}

// CreateLineItem handles POST /tickets/:id/items
// @Summary Create a line item
// @Description Add one line item to a ticket
// @Tags line-items
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param request body LineItemRequest true "Line item"
// @Success 201 {object} utils.APIResponse{data=LineItemView}
// @Failure 400 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Failure 502 {object} utils.APIResponse
// @Router /tickets/{id}/items [post]
func (h *TicketHandler) CreateLineItem(c *gin.Context) {
	ticketID, err := parseEntityID(c, "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req LineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for create line item", "ticket_id", ticketID, "error", err)
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("Invalid request body", err.Error()))
		return
	}

	li, err := h.mutator.CreateLineItem(c.Request.Context(), ticketID, req.ToDraft())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, h.itemView(li, h.now()), "Line item created successfully")
}

// BulkInsert handles POST /tickets/:id/items/bulk. The insert keeps
// running after the response; progress shows up through the change feed.
// @Summary Bulk insert line items
// @Description Queue line items for one ticket; they are inserted one at a time in order
// @Tags line-items
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param request body BulkInsertRequest true "Line items in insert order"
// @Success 202 {object} utils.APIResponse{data=BulkAcceptedResponse}
// @Failure 400 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Router /tickets/{id}/items/bulk [post]
func (h *TicketHandler) BulkInsert(c *gin.Context) {
	ticketID, err := parseEntityID(c, "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req BulkInsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for bulk insert", "ticket_id", ticketID, "error", err)
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("Invalid request body", err.Error()))
		return
	}
	if _, ok := h.reader.Ticket(ticketID); !ok {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("ticket not found", ticketID))
		return
	}
	if isProvisional(ticketID) {
		utils.ErrorResponseWithError(c, errors.NewConflictError("ticket is not confirmed yet", ticketID))
		return
	}
	if h.bulk.Busy() {
		utils.ErrorResponseWithError(c, errors.NewConflictError("a bulk insert is already running"))
		return
	}

	drafts := toDrafts(req.Items)
	goroutine.SafeGoWG(&h.bg, h.logger, "bulk-insert", func() {
		if _, err := h.bulk.Enqueue(h.baseCtx, ticketID, drafts); err != nil {
			h.logger.Errorw("bulk insert failed", "ticket_id", ticketID, "error", err)
		}
	})

	utils.AcceptedResponse(c, BulkAcceptedResponse{TicketID: ticketID, Queued: len(drafts)}, "Bulk insert queued")
}

// UpdateLineItemStatus handles PATCH /items/:id/status
// @Summary Change payment status
// @Description Change the payment status of a line item; paid states stamp the payment time
// @Tags line-items
// @Accept json
// @Produce json
// @Param id path string true "Line item ID"
// @Param request body UpdateStatusRequest true "New status"
// @Success 200 {object} utils.APIResponse{data=LineItemView}
// @Failure 400 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Failure 502 {object} utils.APIResponse
// @Router /items/{id}/status [patch]
func (h *TicketHandler) UpdateLineItemStatus(c *gin.Context) {
	itemID, err := parseEntityID(c, "line item")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("Invalid request body", err.Error()))
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	li, err := h.mutator.UpdateLineItemStatus(c.Request.Context(), itemID, status)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Status updated", h.itemView(li, h.now()))
}

// DeleteLineItem handles DELETE /items/:id
// @Summary Delete a line item
// @Tags line-items
// @Param id path string true "Line item ID"
// @Success 204 "No Content"
// @Failure 404 {object} utils.APIResponse
// @Failure 502 {object} utils.APIResponse
// @Router /items/{id} [delete]
func (h *TicketHandler) DeleteLineItem(c *gin.Context) {
	itemID, err := parseEntityID(c, "line item")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.mutator.DeleteLineItem(c.Request.Context(), itemID); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.NoContentResponse(c)
}

// DeleteTicket handles DELETE /tickets/:id
// @Summary Delete a ticket
// @Description Delete a ticket and all of its line items
// @Tags tickets
// @Param id path string true "Ticket ID"
// @Success 204 "No Content"
// @Failure 404 {object} utils.APIResponse
// @Failure 502 {object} utils.APIResponse
// @Router /tickets/{id} [delete]
func (h *TicketHandler) DeleteTicket(c *gin.Context) {
	ticketID, err := parseEntityID(c, "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.mutator.DeleteTicket(c.Request.Context(), ticketID); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.NoContentResponse(c)
}

func (h *TicketHandler) itemViews(items []*ticket.LineItem, now time.Time) []LineItemView {
	views := make([]LineItemView, len(items))
	for i, li := range items {
		views[i] = h.itemView(li, now)
	}
	return views
}

// itemView attaches the temporal facts. An unreadable creation stamp is
// logged and the facts are left out.
func (h *TicketHandler) itemView(li *ticket.LineItem, now time.Time) LineItemView {
	view := LineItemView{LineItem: li, Provisional: isProvisional(li.ID)}
	facts, err := li.Facts(now)
	if err != nil {
		h.logger.Warnw("cannot compute facts of line item",
			"line_item_id", li.ID,
			"created_date", li.CreatedDate,
			"created_time", li.CreatedTime,
			"error", err,
		)
		return view
	}
	view.Facts = &facts
	return view
}
