package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	applied := feedEventsTotal.WithLabelValues("line_items", "update", "applied")
	before := testutil.ToFloat64(applied)
	r.FeedEventApplied(ticket.TableLineItems, ticket.ChangeUpdate, "applied")
	assert.Equal(t, before+1, testutil.ToFloat64(applied))

	r.PendingMutations(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(pendingMutations))

	failed := bulkItemsTotal.WithLabelValues("failed")
	before = testutil.ToFloat64(failed)
	r.BulkItemAttempted(false)
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

type stubRemote struct {
	ticket.Remote
	err error
}

func (s stubRemote) DeleteLineItem(context.Context, string) error {
	return s.err
}

func (s stubRemote) UpdateLineItemStatus(context.Context, string, vo.PaymentStatus, *string) error {
	return s.err
}

func TestInstrumentedRemote_PassesThrough(t *testing.T) {
	cause := errors.New("boom")
	r := NewInstrumentedRemote(stubRemote{err: cause})

	assert.ErrorIs(t, r.DeleteLineItem(context.Background(), "a"), cause)
	assert.ErrorIs(t, r.UpdateLineItemStatus(context.Background(), "a", vo.PaymentPaid, nil), cause)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(remoteCallDuration), 2)
}

func TestHandler_ServesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", Handler())

	NewRecorder().OverdueItems(2)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "ntconsole_overdue_line_items 2"))
}
