package model

import "github.com/m-lab/httpspeed/pkg/speedtest/spec"

// TestResult is the outcome of a successful full test. It is a value type
// and is never modified after creation.
type TestResult struct {
	// Timestamp is the local time the test completed, in RFC 3339 format.
	Timestamp string `json:"timestamp"`
	// PingMS is the latency probe time, in milliseconds.
	PingMS int64 `json:"ping_ms"`
	// DownloadMbps is the download throughput in decimal megabits/s.
	DownloadMbps float64 `json:"download_mbps"`
	// UploadMbps is the upload throughput in decimal megabits/s.
	UploadMbps float64 `json:"upload_mbps"`
}

// History is a list of TestResults, most recent first.
type History []TestResult

// Push returns a new History with r in front, truncated to
// spec.MaxHistory entries. The receiver is not modified.
func (h History) Push(r TestResult) History {
	n := len(h) + 1
	if n > spec.MaxHistory {
		n = spec.MaxHistory
	}
	out := make(History, 0, n)
	out = append(out, r)
	for _, v := range h {
		if len(out) == n {
			break
		}
		out = append(out, v)
	}
	return out
}

// Truncate returns h limited to spec.MaxHistory entries.
func (h History) Truncate() History {
	if len(h) > spec.MaxHistory {
		return h[:spec.MaxHistory]
	}
	return h
}
