package model_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/m-lab/httpspeed/pkg/speedtest/model"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
)

func result(i int) model.TestResult {
	return model.TestResult{
		Timestamp:    fmt.Sprintf("run-%d", i),
		PingMS:       int64(i),
		DownloadMbps: float64(i),
		UploadMbps:   float64(i) / 2,
	}
}

func TestHistory_Push(t *testing.T) {
	t.Run("newest first", func(t *testing.T) {
		var h model.History
		h = h.Push(result(1))
		h = h.Push(result(2))
		h = h.Push(result(3))
		want := model.History{result(3), result(2), result(1)}
		if diff := cmp.Diff(want, h); diff != "" {
			t.Errorf("Push() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("oldest evicted on overflow", func(t *testing.T) {
		var h model.History
		for i := 1; i <= 6; i++ {
			h = h.Push(result(i))
			if len(h) > spec.MaxHistory {
				t.Fatalf("history has %d entries after push #%d", len(h), i)
			}
		}
		want := model.History{result(6), result(5), result(4), result(3), result(2)}
		if diff := cmp.Diff(want, h); diff != "" {
			t.Errorf("Push() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("receiver is not modified", func(t *testing.T) {
		h := model.History{result(2), result(1)}
		_ = h.Push(result(3))
		if diff := cmp.Diff(model.History{result(2), result(1)}, h); diff != "" {
			t.Errorf("Push() modified the receiver (-want +got):\n%s", diff)
		}
	})

	t.Run("order is insertion order, not timestamp order", func(t *testing.T) {
		older := model.TestResult{Timestamp: "2020-01-01T00:00:00Z"}
		newer := model.TestResult{Timestamp: "2030-01-01T00:00:00Z"}
		h := model.History{}.Push(newer).Push(older)
		if h[0] != older || h[1] != newer {
			t.Errorf("Push() reordered entries: %v", h)
		}
	})
}

func TestHistory_Truncate(t *testing.T) {
	h := model.History{result(1), result(2), result(3), result(4), result(5), result(6), result(7)}
	got := h.Truncate()
	if len(got) != spec.MaxHistory {
		t.Fatalf("Truncate() returned %d entries", len(got))
	}
	if got[0] != result(1) || got[4] != result(5) {
		t.Errorf("Truncate() kept the wrong entries: %v", got)
	}
}
