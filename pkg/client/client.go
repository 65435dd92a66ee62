package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/httpspeed/pkg/speedtest/model"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
	"github.com/m-lab/httpspeed/pkg/version"
)

const libraryName = "httpspeed-client"

var (
	// ErrTransport is returned when a download or upload request did not
	// complete. A non-2xx response is not a transport failure.
	ErrTransport = errors.New("transport failure")

	libraryVersion = version.Version
)

// Client runs the ping, download and upload probes.
type Client struct {
	// ClientName is the name of the client sent to the server as part of the user-agent.
	ClientName string
	// ClientVersion is the version of the client sent to the server as part of the user-agent.
	ClientVersion string

	config Config

	httpClient *http.Client

	// now returns the current time. All the elapsed times are computed
	// from its readings.
	now func() time.Time
}

// Result is the outcome of a single step.
type Result struct {
	// Kind is the step this result refers to.
	Kind spec.StepKind
	// Elapsed is the measured wall-clock time.
	Elapsed time.Duration
	// Bytes is the transfer size. Zero for ping.
	Bytes int64
	// PingMS is the rounded latency in milliseconds. Only set for ping.
	PingMS int64
	// Mbps is the transfer rate in decimal megabits/s. Zero for ping.
	Mbps float64
}

// makeUserAgent creates the user agent string.
func makeUserAgent(clientName, clientVersion string) string {
	return clientName + "/" + clientVersion + " " + libraryName + "/" + libraryVersion
}

// New returns a new Client with the provided client name, version and config.
// It panics if clientName or clientVersion are empty.
func New(clientName, clientVersion string, config Config) *Client {
	if clientName == "" || clientVersion == "" {
		panic("client name and version must be non-empty")
	}
	if config.Emitter == nil {
		config.Emitter = discard{}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: config.NoVerify,
	}
	return &Client{
		ClientName:    clientName,
		ClientVersion: clientVersion,

		config: config,
		httpClient: &http.Client{
			Transport: transport,
		},
		now: time.Now,
	}
}

// Mbps returns the rate, in decimal megabits per second, of a transfer of
// the given number of bytes that took elapsed. A non-positive elapsed time
// results in a zero rate.
func Mbps(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) * 8 / elapsed.Seconds() / 1e6
}

// newRequest creates a probe request with caching disabled. The measurement
// ID and the client metadata are added to the querystring.
func (c *Client) newRequest(ctx context.Context, method, rawURL string,
	body io.Reader) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if c.config.MeasurementID != "" {
		q.Set("mid", c.config.MeasurementID)
	}
	q.Set("client_arch", runtime.GOARCH)
	q.Set("client_library_name", libraryName)
	q.Set("client_library_version", libraryVersion)
	q.Set("client_os", runtime.GOOS)
	q.Set("client_name", c.ClientName)
	q.Set("client_version", c.ClientVersion)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", makeUserAgent(c.ClientName, c.ClientVersion))
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")
	return req, nil
}

// withTimeout derives the context for a single request.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout > 0 {
		return context.WithTimeout(ctx, c.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// MeasurePing sends a single request to the configured ping URL and returns
// the elapsed time, rounded to the nearest millisecond. Failures of the
// request are not reported to the caller: the time it took to fail is
// returned instead.
func (c *Client) MeasurePing(ctx context.Context) int64 {
	c.config.Emitter.OnStart(spec.StepPing)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, c.config.PingURL, nil)
	start := c.now()
	var resp *http.Response
	if err == nil {
		resp, err = c.httpClient.Do(req)
	}
	elapsed := c.now().Sub(start)
	if err != nil {
		c.config.Emitter.OnDebug(fmt.Sprintf("ping request failed: %v", err))
	} else {
		resp.Body.Close()
	}

	if elapsed < 0 {
		elapsed = 0
	}
	ms := elapsed.Round(time.Millisecond).Milliseconds()
	c.config.Emitter.OnResult(Result{
		Kind:    spec.StepPing,
		Elapsed: elapsed,
		PingMS:  ms,
	})
	return ms
}

// MeasureTransfer runs a download or upload of size bytes and returns the
// rate in decimal megabits per second. On failure, the returned error wraps
// ErrTransport.
func (c *Client) MeasureTransfer(ctx context.Context, kind spec.StepKind, size int64) (float64, error) {
	if size < 0 {
		panic(fmt.Sprintf("invalid transfer size: %d", size))
	}
	c.config.Emitter.OnStart(kind)

	var (
		elapsed time.Duration
		err     error
	)
	switch kind {
	case spec.StepDownload:
		elapsed, err = c.download(ctx, size)
	case spec.StepUpload:
		elapsed, err = c.upload(ctx, size)
	default:
		panic(fmt.Sprintf("invalid transfer kind: %s", kind))
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrTransport, kind, err)
		c.config.Emitter.OnError(kind, err)
		return 0, err
	}

	rate := Mbps(size, elapsed)
	c.config.Emitter.OnResult(Result{
		Kind:    kind,
		Elapsed: elapsed,
		Bytes:   size,
		Mbps:    rate,
	})
	return rate, nil
}

// download times a GET of the download URL until the whole body is read.
func (c *Client) download(ctx context.Context, size int64) (time.Duration, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rawURL := strings.ReplaceAll(c.config.DownloadURL, spec.BytesPlaceholder,
		strconv.FormatInt(size, 10))
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	log.Debug("download", "url", req.URL.String())

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(io.Discard, resp.Body)
	elapsed := c.now().Sub(start)
	if err != nil {
		return 0, err
	}
	if n != size {
		c.config.Emitter.OnDebug(fmt.Sprintf("download: expected %d bytes, got %d (status %d)",
			size, n, resp.StatusCode))
	}
	return elapsed, nil
}

// upload times a POST of a zero-filled payload until the response arrives.
func (c *Client) upload(ctx context.Context, size int64) (time.Duration, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	payload := make([]byte, size)
	req, err := c.newRequest(ctx, http.MethodPost, c.config.UploadURL,
		bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	log.Debug("upload", "url", req.URL.String(), "bytes", size)

	start := c.now()
	resp, err := c.httpClient.Do(req)
	elapsed := c.now().Sub(start)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		c.config.Emitter.OnDebug(fmt.Sprintf("upload: cannot read response: %v", err))
	}
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		c.config.Emitter.OnDebug(fmt.Sprintf("upload: status %d", resp.StatusCode))
	}
	return elapsed, nil
}

// RunFullTest runs ping, download and upload, in this order and never
// concurrently. If the download fails the upload is not attempted.
func (c *Client) RunFullTest(ctx context.Context) (model.TestResult, error) {
	ping := c.MeasurePing(ctx)

	download, err := c.MeasureTransfer(ctx, spec.StepDownload, c.config.DownloadBytes)
	if err != nil {
		return model.TestResult{}, err
	}

	upload, err := c.MeasureTransfer(ctx, spec.StepUpload, c.config.UploadBytes)
	if err != nil {
		return model.TestResult{}, err
	}

	result := model.TestResult{
		Timestamp:    c.now().Format(time.RFC3339),
		PingMS:       ping,
		DownloadMbps: download,
		UploadMbps:   upload,
	}
	c.config.Emitter.OnSummary(result)
	return result, nil
}

// discard is the Emitter used when none is configured.
type discard struct{}

func (discard) OnStart(spec.StepKind) {}
func (discard) OnResult(Result) {}
func (discard) OnError(spec.StepKind, error) {}
func (discard) OnDebug(string) {}
func (discard) OnSummary(model.TestResult) {}
