package ticket

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warehouse-ops/ntconsole/internal/application/reconcile"
	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
	"github.com/warehouse-ops/ntconsole/internal/shared/errors"
	"github.com/warehouse-ops/ntconsole/internal/shared/id"
)

type LineItemRequest struct {
	ItemNumber  int     `json:"item_number" binding:"gte=0"`
	Code        string  `json:"code" binding:"required,max=64"`
	Description string  `json:"description" binding:"max=500"`
	Quantity    float64 `json:"quantity" binding:"gt=0"`
	Batch       *string `json:"batch,omitempty" binding:"omitempty,max=64"`
	Priority    bool    `json:"priority"`
}

func (r LineItemRequest) ToDraft() ticket.LineItemDraft {
	return ticket.LineItemDraft{
		ItemNumber:  r.ItemNumber,
		Code:        strings.TrimSpace(r.Code),
		Description: r.Description,
		Quantity:    r.Quantity,
		Batch:       r.Batch,
		Priority:    r.Priority,
	}
}

type CreateTicketRequest struct {
	Items []LineItemRequest `json:"items" binding:"omitempty,dive"`
}

type BulkInsertRequest struct {
	Items []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=awaiting_payment paid partially_paid"`
}

func toDrafts(items []LineItemRequest) []ticket.LineItemDraft {
	drafts := make([]ticket.LineItemDraft, len(items))
	for i, item := range items {
		drafts[i] = item.ToDraft()
	}
	return drafts
}

// LineItemView is a line item as shown in the console, with its
// time-derived facts when the creation stamp could be read.
type LineItemView struct {
	*ticket.LineItem
	Provisional bool          `json:"provisional"`
	Facts       *ticket.Facts `json:"facts,omitempty"`
}

type TicketView struct {
	*ticket.Ticket
	Provisional bool           `json:"provisional"`
	Items       []LineItemView `json:"items,omitempty"`
}

type BulkAcceptedResponse struct {
	TicketID string `json:"ticket_id"`
	Queued   int    `json:"queued"`
}

type CurrentShiftResponse struct {
	Shift biztime.Shift `json:"shift"`
	Date  string        `json:"date"`
	Time  string        `json:"time"`
}

type PendingMutationView struct {
	CorrelationKey string            `json:"correlation_key"`
	EntityKind     ticket.EntityKind `json:"entity_kind"`
	TempID         string            `json:"temp_id,omitempty"`
	IssuedAt       time.Time         `json:"issued_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

func toPendingViews(pending []reconcile.PendingMutation) []PendingMutationView {
	views := make([]PendingMutationView, len(pending))
	for i, p := range pending {
		views[i] = PendingMutationView{
			CorrelationKey: p.CorrelationKey,
			EntityKind:     p.EntityKind,
			TempID:         p.TempID,
			IssuedAt:       p.IssuedAt,
			ExpiresAt:      p.IssuedAt.Add(p.TTL),
		}
	}
	return views
}

func parseEntityID(c *gin.Context, what string) (string, error) {
	entityID := strings.TrimSpace(c.Param("id"))
	if entityID == "" {
		return "", errors.NewValidationError("Invalid " + what + " ID")
	}
	return entityID, nil
}

func parseStatus(raw string) (vo.PaymentStatus, error) {
	status, err := vo.NewPaymentStatus(raw)
	if err != nil {
		return "", errors.NewValidationError("Invalid payment status", raw)
	}
	return status, nil
}

func isProvisional(entityID string) bool {
	return id.IsTemporary(entityID)
}
