package models

import "gorm.io/datatypes"

type TicketModel struct {
	ID          string         `gorm:"primaryKey;size:36"`
	Number      string         `gorm:"uniqueIndex;size:50;not null"`
	CreatedDate datatypes.Date `gorm:"not null;index"`
	CreatedTime datatypes.Time `gorm:"not null"`
	Status      string         `gorm:"size:20;not null;index"`
	ClientRef   string         `gorm:"size:64"`
	CreatedAt   int64          `gorm:"autoCreateTime:milli;not null"`
	UpdatedAt   int64          `gorm:"autoUpdateTime:milli;not null"`

	// Note: No foreign key constraints or associations.
	// Line items are removed together with their ticket by the repository.
}

func (TicketModel) TableName() string {
	return "tickets"
}

// LineItemModel is one material line of a ticket. Item numbers are unique
// per ticket, not globally.
type LineItemModel struct {
	ID          string          `gorm:"primaryKey;size:36"`
	TicketID    string          `gorm:"size:36;not null;uniqueIndex:idx_line_items_ticket_item,priority:1"`
	ItemNumber  int             `gorm:"not null;uniqueIndex:idx_line_items_ticket_item,priority:2"`
	Code        string          `gorm:"size:64;not null;index"`
	Description string          `gorm:"size:500"`
	Quantity    float64         `gorm:"not null"`
	Batch       *string         `gorm:"size:64"`
	Status      string          `gorm:"size:20;not null;index"`
	Priority    bool            `gorm:"not null;default:false"`
	CreatedDate datatypes.Date  `gorm:"not null;index"`
	CreatedTime datatypes.Time  `gorm:"not null"`
	PaymentTime *datatypes.Time
	ClientRef   string `gorm:"size:64"`
	CreatedAt   int64 `gorm:"autoCreateTime:milli;not null"`
	UpdatedAt   int64 `gorm:"autoUpdateTime:milli;not null"`
}

func (LineItemModel) TableName() string {
	return "line_items"
}

// All returns every model the backend schema consists of.
func All() []any {
	return []any{&TicketModel{}, &LineItemModel{}}
}
