package model

import (
	"time"

	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
)

// ArchivalData is the archival data format for a server-side speedtest1
// session, i.e. all the probe requests sharing a measurement ID.
type ArchivalData struct {
	// GitShortCommit is the Git commit (short form) of the running server code.
	GitShortCommit string
	// Version is the symbolic version (if any) of the running server code.
	Version string
	// ID is the measurement ID shared by the requests of this session.
	ID string

	// Client is the client's ip:port pair of the first request.
	Client string
	// Server is the server's ip:port pair of the first request.
	Server string

	// StartTime is the time the first request was received.
	StartTime time.Time
	// EndTime is set when the session expires, since there is no explicit
	// termination message.
	EndTime time.Time

	// ClientMetadata contains the unrecognized querystring parameters of
	// the first request.
	ClientMetadata []NameValue

	// Requests is the list of probe requests served for this session.
	Requests []Request
}

// Request is a single probe request as seen by the server.
type Request struct {
	// Kind is the probe kind.
	Kind spec.StepKind
	// StartTime is when the handler started serving the request.
	StartTime time.Time
	// EndTime is when the handler finished serving the request.
	EndTime time.Time
	// Bytes is the number of body bytes sent (download) or received (upload).
	Bytes int64
	// StatusCode is the HTTP status code of the response.
	StatusCode int
}

// ClientArchivalData is the archival data format for a client-side run.
type ClientArchivalData struct {
	// Version is the symbolic version of the client library.
	Version string
	// MeasurementID is the "mid" sent to the probe endpoints.
	MeasurementID string

	// StartTime is the run's start time.
	StartTime time.Time
	// EndTime is the run's end time.
	EndTime time.Time

	// PingURL, DownloadURL and UploadURL are the configured endpoints.
	PingURL     string
	DownloadURL string
	UploadURL   string
	// DownloadBytes and UploadBytes are the configured transfer sizes.
	DownloadBytes int64
	UploadBytes   int64

	// Result is the test result. It is the zero value when the run failed.
	Result TestResult
	// Failure is the error message of a failed run.
	Failure string `json:",omitempty"`
}
