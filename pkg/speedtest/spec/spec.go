// Package spec contains constants for the speedtest1 HTTP probes.
package spec

import "time"

const (
	// DefaultPingURL is the default latency-probe endpoint.
	DefaultPingURL = "https://www.google.com"

	// DefaultDownloadURL is the default download-probe endpoint. The
	// BytesPlaceholder is replaced with the requested size.
	DefaultDownloadURL = "https://httpbin.org/bytes/" + BytesPlaceholder

	// DefaultUploadURL is the default upload-probe endpoint.
	DefaultUploadURL = "https://httpbin.org/post"

	// BytesPlaceholder marks where the download size goes in a download URL.
	BytesPlaceholder = "{bytes}"

	// DefaultDownloadBytes is the size of the download probe.
	DefaultDownloadBytes = 5_000_000

	// DefaultUploadBytes is the size of the upload probe.
	DefaultUploadBytes = 2_000_000

	// DefaultTimeout bounds every single probe request. Zero disables it.
	DefaultTimeout = 30 * time.Second

	// MaxHistory is the maximum number of results kept in the history.
	MaxHistory = 5

	// HistoryKey is the key under which the history is stored.
	HistoryKey = "speedTestHistory"

	// PingPath is the latency-probe path served by speedtest-server.
	PingPath = "/speedtest/v1/ping"
	// DownloadPath is the download-probe path served by speedtest-server.
	DownloadPath = "/speedtest/v1/download"
	// UploadPath is the upload-probe path served by speedtest-server.
	UploadPath = "/speedtest/v1/upload"

	// MaxDownloadBytes is the largest download the server agrees to send.
	MaxDownloadBytes = 1_000_000_000

	// DefaultSessionCacheTTL is the default server session cache TTL.
	DefaultSessionCacheTTL = 1 * time.Minute

	// Datatype is the archival datatype name.
	Datatype = "speedtest1"
)

// StepKind indicates a step of a full test.
type StepKind string

const (
	// StepPing is the latency probe.
	StepPing = StepKind("ping")

	// StepDownload is the download probe.
	StepDownload = StepKind("download")

	// StepUpload is the upload probe.
	StepUpload = StepKind("upload")
)
