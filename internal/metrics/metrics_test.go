// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// getSampleCount extracts the observation count from a Prometheus histogram
func getSampleCount(t *testing.T, observer prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := observer.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T is not a metric", observer)
	}
	var m io_prometheus_client.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordPush(t *testing.T) {
	before := testutil.ToFloat64(CasesPushed.WithLabelValues("create", "failure"))

	RecordPush("create", errors.New("boom"))
	RecordPush("create", nil)

	if got := testutil.ToFloat64(CasesPushed.WithLabelValues("create", "failure")); got != before+1 {
		t.Errorf("create/failure = %v, want %v", got, before+1)
	}
}

func TestRecordTokenFetch(t *testing.T) {
	okBefore := testutil.ToFloat64(TokenFetches.WithLabelValues("success"))
	failBefore := testutil.ToFloat64(TokenFetches.WithLabelValues("failure"))

	RecordTokenFetch(nil)
	RecordTokenFetch(errors.New("denied"))

	if got := testutil.ToFloat64(TokenFetches.WithLabelValues("success")); got != okBefore+1 {
		t.Errorf("success = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(TokenFetches.WithLabelValues("failure")); got != failBefore+1 {
		t.Errorf("failure = %v, want %v", got, failBefore+1)
	}
}

func TestRecordCRMRequest_StatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{302, "3xx"},
		{401, "4xx"},
		{503, "5xx"},
		{0, "error"},
	}

	for _, tt := range tests {
		before := testutil.ToFloat64(CRMRequestsTotal.WithLabelValues("odata", "GET", tt.want))
		RecordCRMRequest("odata", "GET", tt.code, 10*time.Millisecond)
		if got := testutil.ToFloat64(CRMRequestsTotal.WithLabelValues("odata", "GET", tt.want)); got != before+1 {
			t.Errorf("status %d: counter %s = %v, want %v", tt.code, tt.want, got, before+1)
		}
	}
}

func TestRecordPass(t *testing.T) {
	before := testutil.ToFloat64(SyncPassesTotal.WithLabelValues("full", "completed"))
	observedBefore := getSampleCount(t, SyncPassDuration.WithLabelValues("full"))

	RecordPass("full", "completed", time.Second)

	if got := testutil.ToFloat64(SyncPassesTotal.WithLabelValues("full", "completed")); got != before+1 {
		t.Errorf("passes = %v, want %v", got, before+1)
	}
	if got := getSampleCount(t, SyncPassDuration.WithLabelValues("full")); got != observedBefore+1 {
		t.Errorf("duration samples = %d, want %d", got, observedBefore+1)
	}
}
