package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUpdateHighestSlot_OnlyRaises(t *testing.T) {
	UpdateHighestSlot(500)
	UpdateHighestSlot(100)

	if got := testutil.ToFloat64(DefaultMetrics.HighestSlotSeen); got != 500 {
		t.Errorf("highest slot = %v, want 500", got)
	}

	RecordSlotUpdate(501)
	if got := testutil.ToFloat64(DefaultMetrics.HighestSlotSeen); got != 501 {
		t.Errorf("highest slot = %v, want 501", got)
	}
}

func TestRecordStored_Labels(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.UpdatesStored.WithLabelValues("memory", "error"))
	RecordStored("memory", errors.New("boom"))
	RecordStored("memory", nil)

	if got := testutil.ToFloat64(DefaultMetrics.UpdatesStored.WithLabelValues("memory", "error")); got != before+1 {
		t.Errorf("error count = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(DefaultMetrics.UpdatesStored.WithLabelValues("memory", "ok")); got < 1 {
		t.Errorf("ok count = %v, want >= 1", got)
	}
}

func TestRecordDBQuery_CountsErrors(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op"))
	RecordDBQuery("postgres", "test_op", 0.01, nil)
	RecordDBQuery("postgres", "test_op", 0.02, errors.New("fail"))

	if got := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op")); got != before+1 {
		t.Errorf("db errors = %v, want %v", got, before+1)
	}
}
