package reconcile

import (
	"context"
	"fmt"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
)

// DefaultFetchPageSize is the window used when pulling a full snapshot.
const DefaultFetchPageSize = 1000

// PageFetcher reads the backend in fixed-size windows.
type PageFetcher interface {
	FetchTicketsPage(ctx context.Context, offset, limit int) ([]*ticket.Ticket, error)
	FetchLineItemsPage(ctx context.Context, offset, limit int) ([]*ticket.LineItem, error)
}

// FetchAll reads every ticket and line item, one window at a time.
func FetchAll(ctx context.Context, src PageFetcher, pageSize int) ([]*ticket.Ticket, []*ticket.LineItem, error) {
	if pageSize <= 0 {
		pageSize = DefaultFetchPageSize
	}
	tickets, err := fetchPages(ctx, pageSize, src.FetchTicketsPage)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch tickets: %w", err)
	}
	items, err := fetchPages(ctx, pageSize, src.FetchLineItemsPage)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch line items: %w", err)
	}
	return tickets, items, nil
}

func fetchPages[T any](ctx context.Context, pageSize int, fetch func(ctx context.Context, offset, limit int) ([]T, error)) ([]T, error) {
	var all []T
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
