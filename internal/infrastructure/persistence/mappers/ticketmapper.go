package mappers

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/persistence/models"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
)

// TicketMapper converts between tickets/line items and their persistence models.
type TicketMapper interface {
	ToModel(t *ticket.Ticket) (*models.TicketModel, error)
	ToDomain(model *models.TicketModel) (*ticket.Ticket, error)
	LineItemToModel(li *ticket.LineItem) (*models.LineItemModel, error)
	LineItemToDomain(model *models.LineItemModel) (*ticket.LineItem, error)
}

type TicketMapperImpl struct{}

func NewTicketMapper() TicketMapper {
	return &TicketMapperImpl{}
}

func (m *TicketMapperImpl) ToModel(t *ticket.Ticket) (*models.TicketModel, error) {
	date, err := toDate(t.CreatedDate)
	if err != nil {
		return nil, err
	}
	tod, err := toTime(t.CreatedTime)
	if err != nil {
		return nil, err
	}
	return &models.TicketModel{
		ID:          t.ID,
		Number:      t.Number,
		CreatedDate: date,
		CreatedTime: tod,
		Status:      t.Status.String(),
		ClientRef:   t.ClientRef,
	}, nil
}

func (m *TicketMapperImpl) ToDomain(model *models.TicketModel) (*ticket.Ticket, error) {
	status, err := vo.NewTicketStatus(model.Status)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", model.ID, err)
	}
	return &ticket.Ticket{
		ID:          model.ID,
		Number:      model.Number,
		CreatedDate: fromDate(model.CreatedDate),
		CreatedTime: model.CreatedTime.String(),
		Status:      status,
		ClientRef:   model.ClientRef,
	}, nil
}

func (m *TicketMapperImpl) LineItemToModel(li *ticket.LineItem) (*models.LineItemModel, error) {
	date, err := toDate(li.CreatedDate)
	if err != nil {
		return nil, err
	}
	tod, err := toTime(li.CreatedTime)
	if err != nil {
		return nil, err
	}
	model := &models.LineItemModel{
		ID:          li.ID,
		TicketID:    li.TicketID,
		ItemNumber:  li.ItemNumber,
		Code:        li.Code,
		Description: li.Description,
		Quantity:    li.Quantity,
		Batch:       li.Batch,
		Status:      li.Status.String(),
		Priority:    li.Priority,
		CreatedDate: date,
		CreatedTime: tod,
		ClientRef:   li.ClientRef,
	}
	if li.PaymentTime != nil {
		paid, err := toTime(*li.PaymentTime)
		if err != nil {
			return nil, err
		}
		model.PaymentTime = &paid
	}
	return model, nil
}

func (m *TicketMapperImpl) LineItemToDomain(model *models.LineItemModel) (*ticket.LineItem, error) {
	status, err := vo.NewPaymentStatus(model.Status)
	if err != nil {
		return nil, fmt.Errorf("line item %s: %w", model.ID, err)
	}
	li := &ticket.LineItem{
		ID:          model.ID,
		TicketID:    model.TicketID,
		ItemNumber:  model.ItemNumber,
		Code:        model.Code,
		Description: model.Description,
		Quantity:    model.Quantity,
		Batch:       model.Batch,
		Status:      status,
		Priority:    model.Priority,
		CreatedDate: fromDate(model.CreatedDate),
		CreatedTime: model.CreatedTime.String(),
		ClientRef:   model.ClientRef,
	}
	if model.PaymentTime != nil {
		paid := model.PaymentTime.String()
		li.PaymentTime = &paid
	}
	li.Normalize()
	return li, nil
}

// toDate stores a business date as UTC midnight so that no driver
// timezone conversion can move it to a neighbouring day.
func toDate(s string) (datatypes.Date, error) {
	d, err := biztime.ParseDate(s)
	if err != nil {
		return datatypes.Date{}, err
	}
	return datatypes.Date(time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)), nil
}

func fromDate(d datatypes.Date) string {
	return time.Time(d).UTC().Format(biztime.DateLayout)
}

func toTime(s string) (datatypes.Time, error) {
	tod, err := biztime.ParseTimeOfDay(s)
	if err != nil {
		return 0, err
	}
	return datatypes.Time(tod), nil
}
