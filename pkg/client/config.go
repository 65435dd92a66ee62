package client

import (
	"time"
)

// Config is the configuration for a Client.
type Config struct {
	// PingURL is the latency-probe endpoint.
	PingURL string

	// DownloadURL is the download-probe endpoint. If it contains
	// spec.BytesPlaceholder, the placeholder is replaced with DownloadBytes.
	// Otherwise the endpoint must return DownloadBytes bytes on its own.
	DownloadURL string

	// UploadURL is the upload-probe endpoint. It must accept a POST body of
	// any size.
	UploadURL string

	// DownloadBytes is the size of the download probe.
	DownloadBytes int64

	// UploadBytes is the size of the upload probe.
	UploadBytes int64

	// Timeout bounds every single request. If set to 0, requests are not
	// bounded.
	Timeout time.Duration

	// MeasurementID is the manually configured Measurement ID ("mid") to pass to the server.
	MeasurementID string

	// Emitter is the interface used to emit the results of the test. It can be overridden
	// to provide a custom output.
	Emitter Emitter

	// NoVerify disables the TLS certificate verification.
	NoVerify bool
}
