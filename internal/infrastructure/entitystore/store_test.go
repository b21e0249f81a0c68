package entitystore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
)

func newTicket(id string) *ticket.Ticket {
	return &ticket.Ticket{ID: id, Number: "NT-20240101-" + id, Status: vo.StatusOpen}
}

func newItem(id, ticketID string, n int) *ticket.LineItem {
	return &ticket.LineItem{ID: id, TicketID: ticketID, ItemNumber: n, Code: "MAT", Quantity: 1, Status: vo.PaymentAwaiting}
}

func TestStore_InsertIsIdempotent(t *testing.T) {
	s := New()

	assert.True(t, s.Insert(newTicket("t1")))
	assert.False(t, s.Insert(newTicket("t1")))
	assert.Equal(t, 1, s.Len(ticket.KindTicket))
}

func TestStore_Merge(t *testing.T) {
	s := New()
	s.Upsert(newItem("a", "t1", 1))

	before, after, existed, err := s.Merge(ticket.KindLineItem, "a", []byte(`{"quantity": 3}`))
	require.NoError(t, err)
	require.True(t, existed)
	assert.Equal(t, 1.0, before.(*ticket.LineItem).Quantity)
	assert.Equal(t, 3.0, after.(*ticket.LineItem).Quantity)

	got, _ := s.LineItem("a")
	assert.Equal(t, 3.0, got.Quantity)
}

func TestStore_MergeFailureLeavesStoreUnchanged(t *testing.T) {
	s := New()
	s.Upsert(newItem("a", "t1", 1))

	_, _, existed, err := s.Merge(ticket.KindLineItem, "a", []byte(`{"quantity": "lots"}`))
	require.Error(t, err)
	assert.True(t, existed)

	got, _ := s.LineItem("a")
	assert.Equal(t, 1.0, got.Quantity)
}

func TestStore_MergeAbsent(t *testing.T) {
	s := New()
	_, _, existed, err := s.Merge(ticket.KindTicket, "nope", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStore_MergeMovingParentReindexes(t *testing.T) {
	s := New()
	s.Upsert(newItem("a", "t1", 1))

	_, _, _, err := s.Merge(ticket.KindLineItem, "a", []byte(`{"ticket_id": "t2"}`))
	require.NoError(t, err)

	assert.Empty(t, s.ListByParent(ticket.KindLineItem, "t1"))
	assert.Len(t, s.ListByParent(ticket.KindLineItem, "t2"), 1)
}

func TestStore_RemoveCascade(t *testing.T) {
	s := New()
	s.UpsertAll(newTicket("t1"), newTicket("t2"),
		newItem("a", "t1", 1), newItem("b", "t1", 2), newItem("c", "t2", 1))

	removed, children, ok := s.RemoveCascade("t1")
	require.True(t, ok)
	assert.Equal(t, "t1", removed.EntityID())
	assert.Len(t, children, 2)

	for _, li := range s.AllLineItems() {
		assert.NotEqual(t, "t1", li.TicketID)
	}
	assert.Len(t, s.AllLineItems(), 1)

	_, _, ok = s.RemoveCascade("t1")
	assert.False(t, ok)
}

func TestStore_RemoveWhere(t *testing.T) {
	s := New()
	s.UpsertAll(newItem("a", "t1", 1), newItem("b", "t1", 2))

	removed := s.RemoveWhere("t1")
	assert.Len(t, removed, 2)
	assert.Zero(t, s.Len(ticket.KindLineItem))
	assert.Empty(t, s.RemoveWhere("t1"))
}

func TestStore_Swap(t *testing.T) {
	s := New()
	s.UpsertAll(newTicket("tmp_1"), newItem("tmp_a", "tmp_1", 1))

	err := s.Swap(ticket.KindTicket, "tmp_1", newTicket("t1"), newItem("a", "t1", 1))
	require.NoError(t, err)

	_, ok := s.Ticket("tmp_1")
	assert.False(t, ok)
	_, ok = s.LineItem("tmp_a")
	assert.False(t, ok)
	assert.Len(t, s.LineItems("t1"), 1)
	assert.Equal(t, 1, s.Len(ticket.KindTicket))
}

func TestStore_SwapKeepsEntityDeliveredFirst(t *testing.T) {
	s := New()
	s.Upsert(newItem("tmp_a", "t1", 1))
	delivered := newItem("a", "t1", 1)
	delivered.Code = "FROM-FEED"
	s.Upsert(delivered)

	require.NoError(t, s.Swap(ticket.KindLineItem, "tmp_a", newItem("a", "t1", 1)))

	li, ok := s.LineItem("a")
	require.True(t, ok)
	assert.Equal(t, "FROM-FEED", li.Code)
	assert.Equal(t, 1, s.Len(ticket.KindLineItem))
}

func TestStore_SwapRejectsMismatch(t *testing.T) {
	s := New()
	s.Upsert(newItem("tmp_a", "t1", 1))

	assert.Error(t, s.Swap(ticket.KindLineItem, "tmp_a", newTicket("t1")))
	assert.Error(t, s.Swap(ticket.KindTicket, "tmp_1", newTicket("t1"), newItem("a", "t9", 1)))

	_, ok := s.LineItem("tmp_a")
	assert.True(t, ok, "failed swap leaves the store unchanged")
}

func TestStore_CaptureRestore(t *testing.T) {
	s := New()
	s.UpsertAll(newTicket("t1"), newItem("a", "t1", 1), newItem("b", "t1", 2))

	snap := s.Capture(ticket.KindTicket, "t1")
	s.RemoveCascade("t1")
	s.Restore(snap)

	_, ok := s.Ticket("t1")
	assert.True(t, ok)
	assert.Len(t, s.LineItems("t1"), 2)

	absent := s.Capture(ticket.KindLineItem, "tmp_x")
	s.Upsert(newItem("tmp_x", "t1", 3))
	s.Restore(absent)
	_, ok = s.LineItem("tmp_x")
	assert.False(t, ok)
}

func TestStore_MergeCaptureRestoresPriorState(t *testing.T) {
	s := New()
	s.Upsert(newItem("a", "t1", 1))

	snap, after, existed, err := s.MergeCapture(ticket.KindLineItem, "a", []byte(`{"status":"paid"}`))
	require.NoError(t, err)
	require.True(t, existed)
	assert.Equal(t, vo.PaymentPaid, after.(*ticket.LineItem).Status)
	assert.Equal(t, vo.PaymentAwaiting, snap.Entity.(*ticket.LineItem).Status)

	s.Restore(snap)
	got, _ := s.LineItem("a")
	assert.Equal(t, vo.PaymentAwaiting, got.Status)

	snap, _, existed, err = s.MergeCapture(ticket.KindLineItem, "zz", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Nil(t, snap.Entity)
}

func TestStore_AdoptMovesProvisionalItems(t *testing.T) {
	s := New()
	s.UpsertAll(newTicket("tmp_1"), newItem("tmp_2", "tmp_1", 1), newItem("tmp_3", "tmp_1", 2))

	adopted, err := s.Adopt("tmp_1", newTicket("t1"))
	require.NoError(t, err)
	assert.True(t, adopted)

	assert.Equal(t, 1, s.Len(ticket.KindTicket))
	_, ok := s.Ticket("tmp_1")
	assert.False(t, ok)
	assert.Empty(t, s.LineItems("tmp_1"))
	items := s.LineItems("t1")
	require.Len(t, items, 2)
	assert.Equal(t, "tmp_2", items[0].ID)
	assert.Equal(t, "t1", items[0].TicketID)

	adopted, err = s.Adopt("tmp_1", newTicket("t1"))
	require.NoError(t, err)
	assert.False(t, adopted, "nothing left to adopt")

	_, err = s.Adopt("tmp_1", newItem("a", "t1", 1))
	assert.Error(t, err)
}

func TestStore_SwapTreeDropsAdoptedItems(t *testing.T) {
	s := New()
	s.UpsertAll(newTicket("tmp_1"), newItem("tmp_2", "tmp_1", 1), newItem("tmp_3", "tmp_1", 2))
	_, err := s.Adopt("tmp_1", newTicket("t1"))
	require.NoError(t, err)
	// The echo of the first item already replaced its provisional twin.
	require.NoError(t, s.Swap(ticket.KindLineItem, "tmp_2", newItem("a", "t1", 1)))

	require.NoError(t, s.SwapTree("tmp_1", []string{"tmp_2", "tmp_3"}, newTicket("t1"), newItem("a", "t1", 1), newItem("b", "t1", 2)))

	assert.Equal(t, 1, s.Len(ticket.KindTicket))
	items := s.LineItems("t1")
	require.Len(t, items, 2)
	assert.Equal(t, []string{"a", "b"}, []string{items[0].ID, items[1].ID})
	assert.Equal(t, 2, s.Len(ticket.KindLineItem))
}

func TestStore_LineItemsOrderedByItemNumber(t *testing.T) {
	s := New()
	s.UpsertAll(newItem("z", "t1", 1), newItem("a", "t1", 3), newItem("m", "t1", 2))

	var numbers []int
	for _, li := range s.LineItems("t1") {
		numbers = append(numbers, li.ItemNumber)
	}
	assert.Equal(t, []int{1, 2, 3}, numbers)
	assert.Equal(t, 4, s.NextItemNumber("t1"))
	assert.Equal(t, 1, s.NextItemNumber("t2"))
}

func TestStore_ConcurrentInsertKeepsSingleEntity(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	inserted := make(chan bool, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted <- s.Insert(newItem("a", "t1", 1))
		}()
	}
	wg.Wait()
	close(inserted)

	wins := 0
	for ok := range inserted {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, s.LineItems("t1"), 1)
}
