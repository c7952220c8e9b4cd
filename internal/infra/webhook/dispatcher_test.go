package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	"property_due_alerts/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert() dispatch.DueAlert {
	o := testutil.NewObligation("Fire insurance", testutil.Date("2024-03-01"), obligation.RecurrenceAnnual, obligation.LeadTimeOneMonthBefore)
	o.Amount = decimal.NewNullDecimal(decimal.RequireFromString("1200.5"))
	return dispatch.DueAlert{Obligation: o.WithoutRules(), Rule: o.Rules[0], FireDate: testutil.Date("2024-01-31")}
}

func TestDispatcher_PostsPayload(t *testing.T) {
	var got Payload
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 0, testutil.Logger())
	alert := testAlert()
	require.NoError(t, d.Send(context.Background(), alert, "rcpt_1"))

	assert.Equal(t, "rcpt_1", key)
	assert.Equal(t, "rcpt_1", got.ReceiptID)
	assert.Equal(t, alert.Obligation.ID, got.ObligationID)
	assert.Equal(t, "2024-03-01", got.DueDate)
	assert.Equal(t, "2024-01-31", got.FireDate)
	assert.Equal(t, "1-month-before", got.LeadTime)
	require.NotNil(t, got.Amount)
	assert.Equal(t, "1200.50", *got.Amount)
	assert.Equal(t, srv.URL, d.Recipient(alert))
}

func TestDispatcher_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDispatcher(srv.URL, 3, testutil.Logger()).Send(context.Background(), testAlert(), "rcpt_1")
	assert.ErrorContains(t, err, "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_ServerErrorWithoutRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewDispatcher(srv.URL, 0, testutil.Logger()).Send(context.Background(), testAlert(), "rcpt_1")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_TransportRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 1, testutil.Logger())
	d.client.RetryWaitMin = 0
	d.client.RetryWaitMax = 0
	require.NoError(t, d.Send(context.Background(), testAlert(), "rcpt_1"))
	assert.Equal(t, int32(2), calls.Load())
}
