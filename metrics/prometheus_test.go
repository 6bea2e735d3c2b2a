package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{429, "4xx"},
		{503, "5xx"},
		{0, "transport_error"},
		{999, "unknown"},
	}
	for _, tt := range tests {
		if got := ClassifyStatus(tt.code); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %q; want %q", tt.code, got, tt.want)
		}
	}
}

func TestRecordErrorsIgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(scrapeErrorsTotal.WithLabelValues("test-store", "fetch"))
	RecordErrors("test-store", "fetch", 0)
	RecordErrors("test-store", "fetch", 3)
	after := testutil.ToFloat64(scrapeErrorsTotal.WithLabelValues("test-store", "fetch"))
	if after-before != 3 {
		t.Errorf("errors delta: got %v, want 3", after-before)
	}
}
