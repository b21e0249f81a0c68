package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/persistence/mappers"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/persistence/models"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
	"github.com/warehouse-ops/ntconsole/internal/shared/db"
	apperrors "github.com/warehouse-ops/ntconsole/internal/shared/errors"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

// ChangePublisher announces committed changes on the change feed.
type ChangePublisher interface {
	Publish(ctx context.Context, event ticket.ChangeEvent) error
}

// WarehouseBackend is the shared backend data service for tickets and line
// items. Every committed write is published on the change feed once the
// transaction has committed.
type WarehouseBackend struct {
	db        *gorm.DB
	txManager *db.TransactionManager
	mapper    mappers.TicketMapper
	publisher ChangePublisher
	numbers   ticket.NumberGenerator
	now       func() time.Time
	logger    logger.Interface
}

var _ ticket.Remote = (*WarehouseBackend)(nil)

func NewWarehouseBackend(gdb *gorm.DB, publisher ChangePublisher, log logger.Interface) *WarehouseBackend {
	b := &WarehouseBackend{
		db:        gdb,
		txManager: db.NewTransactionManager(gdb),
		mapper:    mappers.NewTicketMapper(),
		publisher: publisher,
		now:       biztime.NowUTC,
		logger:    log.With("component", "warehouse_backend"),
	}
	b.numbers = ticket.NewDefaultNumberGenerator(b.LastTicketSequence)
	return b
}

// SetClock replaces the backend's time source for creation and payment stamps.
func (b *WarehouseBackend) SetClock(now func() time.Time) {
	b.now = now
	if g, ok := b.numbers.(*ticket.DefaultNumberGenerator); ok {
		g.SetClock(now)
	}
}

func (b *WarehouseBackend) CreateTicket(ctx context.Context, clientRef string, drafts []ticket.LineItemDraft) (*ticket.Ticket, []*ticket.LineItem, error) {
	var created *ticket.Ticket
	var items []*ticket.LineItem

	err := b.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := b.numbers.Generate(ctx)
		if err != nil {
			return err
		}

		now := b.now()
		t := &ticket.Ticket{
			ID:          uuid.NewString(),
			Number:      number,
			CreatedDate: biztime.FormatDate(now),
			CreatedTime: biztime.FormatTimeOfDay(now),
			Status:      vo.StatusOpen,
			ClientRef:   clientRef,
		}
		model, err := b.mapper.ToModel(t)
		if err != nil {
			return err
		}
		tx := db.GetTxFromContext(ctx, b.db)
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to save ticket: %w", err)
		}

		used := make(map[int]bool, len(drafts))
		next := 1
		for _, d := range drafts {
			n := d.ItemNumber
			if n == 0 {
				for used[next] {
					next++
				}
				n = next
			}
			if used[n] {
				return apperrors.NewConflictError("duplicate item number", fmt.Sprintf("item %d", n))
			}
			used[n] = true

			li := ticket.NewLineItem(uuid.NewString(), t.ID, n, d, t.CreatedDate, t.CreatedTime)
			if err := b.insertLineItem(ctx, li); err != nil {
				return err
			}
			items = append(items, li)
		}

		created = t
		db.AfterCommit(ctx, func() {
			b.publish(ctx, ticket.TableTickets, ticket.ChangeInsert, t, nil)
			for _, li := range items {
				b.publish(ctx, ticket.TableLineItems, ticket.ChangeInsert, li, nil)
			}
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	b.logger.Infow("ticket created", "ticket_id", created.ID, "number", created.Number, "items", len(items))
	return created, items, nil
}

func (b *WarehouseBackend) CreateLineItem(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error) {
	var created *ticket.LineItem

	err := b.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tx := db.GetTxFromContext(ctx, b.db)

		var parent models.TicketModel
		if err := tx.Where("id = ?", ticketID).First(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("ticket not found", ticketID)
			}
			return fmt.Errorf("failed to find ticket: %w", err)
		}

		n := draft.ItemNumber
		if n == 0 {
			var maxNumber int
			if err := tx.Model(&models.LineItemModel{}).
				Where("ticket_id = ?", ticketID).
				Select("COALESCE(MAX(item_number), 0)").
				Scan(&maxNumber).Error; err != nil {
				return fmt.Errorf("failed to find next item number: %w", err)
			}
			n = maxNumber + 1
		}

		now := b.now()
		li := ticket.NewLineItem(uuid.NewString(), ticketID, n, draft, biztime.FormatDate(now), biztime.FormatTimeOfDay(now))
		if err := b.insertLineItem(ctx, li); err != nil {
			return err
		}

		created = li
		db.AfterCommit(ctx, func() {
			b.publish(ctx, ticket.TableLineItems, ticket.ChangeInsert, li, nil)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (b *WarehouseBackend) insertLineItem(ctx context.Context, li *ticket.LineItem) error {
	model, err := b.mapper.LineItemToModel(li)
	if err != nil {
		return err
	}
	tx := db.GetTxFromContext(ctx, b.db)
	if err := tx.Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return apperrors.NewConflictError("item number already used on this ticket",
				fmt.Sprintf("ticket %s item %d", li.TicketID, li.ItemNumber))
		}
		return fmt.Errorf("failed to save line item: %w", err)
	}
	return nil
}

// UpdateLineItemStatus sets the payment status. A settled status keeps the
// given payment time, else the stored one, else stamps the current time
// of day; any other status clears it.
func (b *WarehouseBackend) UpdateLineItemStatus(ctx context.Context, id string, status vo.PaymentStatus, paymentTime *string) error {
	if !status.IsValid() {
		return apperrors.NewValidationError("invalid payment status", status.String())
	}

	return b.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		old, err := b.findLineItem(ctx, id)
		if err != nil {
			return err
		}

		updated := *old
		updated.Status = status
		switch {
		case !status.IsSettled():
			updated.PaymentTime = nil
		case paymentTime != nil:
			p := *paymentTime
			updated.PaymentTime = &p
		case old.PaymentTime == nil:
			p := biztime.FormatTimeOfDay(b.now())
			updated.PaymentTime = &p
		}

		model, err := b.mapper.LineItemToModel(&updated)
		if err != nil {
			return apperrors.NewValidationError("invalid payment time", err.Error())
		}
		tx := db.GetTxFromContext(ctx, b.db)
		if err := tx.Model(&models.LineItemModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":       model.Status,
				"payment_time": model.PaymentTime,
			}).Error; err != nil {
			return fmt.Errorf("failed to update line item status: %w", err)
		}

		db.AfterCommit(ctx, func() {
			b.publish(ctx, ticket.TableLineItems, ticket.ChangeUpdate, &updated, old)
		})
		return nil
	})
}

func (b *WarehouseBackend) DeleteLineItem(ctx context.Context, id string) error {
	return b.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		old, err := b.findLineItem(ctx, id)
		if err != nil {
			return err
		}
		tx := db.GetTxFromContext(ctx, b.db)
		if err := tx.Where("id = ?", id).Delete(&models.LineItemModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete line item: %w", err)
		}
		db.AfterCommit(ctx, func() {
			b.publish(ctx, ticket.TableLineItems, ticket.ChangeDelete, nil, old)
		})
		return nil
	})
}

// DeleteTicket removes a ticket and its line items in one transaction and
// announces each removed row.
func (b *WarehouseBackend) DeleteTicket(ctx context.Context, id string) error {
	return b.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tx := db.GetTxFromContext(ctx, b.db)

		var model models.TicketModel
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("ticket not found", id)
			}
			return fmt.Errorf("failed to find ticket: %w", err)
		}
		old, err := b.mapper.ToDomain(&model)
		if err != nil {
			return err
		}

		var itemModels []models.LineItemModel
		if err := tx.Where("ticket_id = ?", id).Order("item_number ASC").Find(&itemModels).Error; err != nil {
			return fmt.Errorf("failed to list line items: %w", err)
		}
		children := make([]*ticket.LineItem, 0, len(itemModels))
		for i := range itemModels {
			li, err := b.mapper.LineItemToDomain(&itemModels[i])
			if err != nil {
				return err
			}
			children = append(children, li)
		}

		if err := tx.Where("ticket_id = ?", id).Delete(&models.LineItemModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete line items: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.TicketModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete ticket: %w", err)
		}

		db.AfterCommit(ctx, func() {
			for _, li := range children {
				b.publish(ctx, ticket.TableLineItems, ticket.ChangeDelete, nil, li)
			}
			b.publish(ctx, ticket.TableTickets, ticket.ChangeDelete, nil, old)
		})
		return nil
	})
}

func (b *WarehouseBackend) FetchTicketsPage(ctx context.Context, offset, limit int) ([]*ticket.Ticket, error) {
	var rows []models.TicketModel
	tx := db.GetTxFromContext(ctx, b.db)
	if err := tx.Scopes(db.Window(offset, limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tickets: %w", err)
	}

	out := make([]*ticket.Ticket, 0, len(rows))
	for i := range rows {
		t, err := b.mapper.ToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *WarehouseBackend) FetchLineItemsPage(ctx context.Context, offset, limit int) ([]*ticket.LineItem, error) {
	var rows []models.LineItemModel
	tx := db.GetTxFromContext(ctx, b.db)
	if err := tx.Scopes(db.Window(offset, limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch line items: %w", err)
	}

	out := make([]*ticket.LineItem, 0, len(rows))
	for i := range rows {
		li, err := b.mapper.LineItemToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, nil
}

// LastTicketSequence returns the highest sequence issued for a date key.
func (b *WarehouseBackend) LastTicketSequence(ctx context.Context, dateKey string) (int, error) {
	var numbers []string
	tx := db.GetTxFromContext(ctx, b.db)
	if err := tx.Model(&models.TicketModel{}).
		Where("number LIKE ?", ticket.NumberDayPrefix(dateKey)+"%").
		Order("number DESC").
		Limit(1).
		Pluck("number", &numbers).Error; err != nil {
		return 0, fmt.Errorf("failed to load last ticket number: %w", err)
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	_, seq, err := ticket.ParseNumberSequence(numbers[0])
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (b *WarehouseBackend) findLineItem(ctx context.Context, id string) (*ticket.LineItem, error) {
	var model models.LineItemModel
	tx := db.GetTxFromContext(ctx, b.db)
	if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("line item not found", id)
		}
		return nil, fmt.Errorf("failed to find line item: %w", err)
	}
	return b.mapper.LineItemToDomain(&model)
}

// publish announces a committed change. The write itself already
// succeeded, so a failed publish is logged and not returned; consumers
// catch up on their next full fetch.
func (b *WarehouseBackend) publish(ctx context.Context, table ticket.Table, kind ticket.ChangeKind, newValue, oldValue ticket.Entity) {
	if b.publisher == nil {
		return
	}

	var ev ticket.ChangeEvent
	var err error
	switch kind {
	case ticket.ChangeInsert:
		var row ticket.Row
		if row, err = ticket.RowOf(newValue); err == nil {
			ev = ticket.Insert{In: table, New: row}
		}
	case ticket.ChangeUpdate:
		var newRow, oldRow ticket.Row
		if newRow, err = ticket.RowOf(newValue); err == nil {
			if oldRow, err = ticket.RowOf(oldValue); err == nil {
				ev = ticket.Update{In: table, New: newRow, Old: oldRow}
			}
		}
	case ticket.ChangeDelete:
		var row ticket.Row
		if row, err = ticket.RowOf(oldValue); err == nil {
			ev = ticket.Delete{In: table, Old: row}
		}
	}
	if err == nil {
		err = b.publisher.Publish(context.WithoutCancel(ctx), ev)
	}
	if err != nil {
		b.logger.Errorw("failed to announce committed change",
			"table", table,
			"kind", kind,
			"error", err,
		)
	}
}
