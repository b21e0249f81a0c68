package db

import (
	"gorm.io/gorm"
)

// Window is a GORM scope selecting one fixed-size page of rows in a stable
// order, for paginated full fetches.
//
// Example usage:
//
//	db.Model(&TicketModel{}).Scopes(db.Window(offset, 1000)).Find(&rows)
func Window(offset, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if offset < 0 {
			offset = 0
		}
		return db.Order("id ASC").Offset(offset).Limit(limit)
	}
}
