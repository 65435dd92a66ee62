// Package handler implements the HTTP probe endpoints of speedtest-server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"
	"github.com/m-lab/access/controller"
	"github.com/m-lab/httpspeed/internal/persistence"
	"github.com/m-lab/httpspeed/pkg/speedtest/model"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
)

// knownOptions are the querystring parameters that are not client metadata.
var knownOptions = map[string]struct{}{
	"mid":   {},
	"bytes": {},
}

// zeros is the buffer download bodies are written from.
var zeros = make([]byte, 1<<16)

// UploadResponse is the body of a successful upload response.
type UploadResponse struct {
	Bytes int64
}

// Handler serves the ping, download and upload probes. Requests carrying a
// measurement ID are recorded into a session that is archived when it
// expires.
type Handler struct {
	dataDir     string
	sessions    *ttlcache.Cache[string, *session]
	sessionsMu  sync.Mutex
	unsubscribe func()
}

// New returns a new Handler archiving sessions to dataDir. Sessions expire
// cacheTTL after their first request.
func New(dataDir string, cacheTTL time.Duration) *Handler {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *session](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *session](),
	)
	unsubscribe := cache.OnEviction(func(ctx context.Context,
		er ttlcache.EvictionReason,
		i *ttlcache.Item[string, *session]) {
		archive := i.Value().Archive()
		archive.EndTime = time.Now()
		log.Debug("Session expired", "id", archive.ID, "reason", er)

		_, err := persistence.WriteDataFile(dataDir, spec.Datatype, "session", archive.ID, archive)
		if err != nil {
			log.Error("failed to write session", "mid", archive.ID, "error", err)
			metricSessions.WithLabelValues("error").Inc()
			return
		}
		metricSessions.WithLabelValues("ok").Inc()
	})

	go cache.Start()
	return &Handler{
		dataDir:     dataDir,
		sessions:    cache,
		unsubscribe: unsubscribe,
	}
}

// Close archives all the sessions, waits for the archival to complete and
// stops the cache cleanup. It must be called only once.
func (h *Handler) Close() {
	h.sessionsMu.Lock()
	h.sessions.DeleteAll()
	h.sessionsMu.Unlock()
	h.unsubscribe()
	h.sessions.Stop()
}

// record adds r to the session for mid, creating it if needed.
func (h *Handler) record(req *http.Request, mid string, r model.Request) {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	var s *session
	if item := h.sessions.Get(mid); item != nil {
		s = item.Value()
	} else {
		// Oversized metadata is not archived.
		metadata, _ := getRequestMetadata(req)
		var server string
		if addr, ok := req.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
			server = addr.String()
		}
		s = newSession(mid, req.RemoteAddr, server, metadata)
		h.sessions.Set(mid, s, ttlcache.DefaultTTL)
		log.Debug("session created", "id", mid)
	}
	s.add(r)
}

// Ping replies immediately with an empty, non-cacheable response. A mid is
// optional.
func (h *Handler) Ping(rw http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rw.Header().Set("Cache-Control", "no-store")
	rw.WriteHeader(http.StatusNoContent)
	metricRequests.WithLabelValues(string(spec.StepPing), "204").Inc()

	if mid, err := GetMIDFromRequest(req); err == nil {
		h.record(req, mid, model.Request{
			Kind:       spec.StepPing,
			StartTime:  start,
			EndTime:    time.Now(),
			StatusCode: http.StatusNoContent,
		})
	}
}

// Download sends the number of zero bytes requested with the "bytes"
// querystring parameter.
func (h *Handler) Download(rw http.ResponseWriter, req *http.Request) {
	start := time.Now()
	mid, err := GetMIDFromRequest(req)
	if err != nil {
		log.Info("Received request without mid", "source", req.RemoteAddr,
			"error", err)
		writeBadRequest(rw, spec.StepDownload)
		return
	}
	size, err := strconv.ParseInt(req.URL.Query().Get("bytes"), 10, 64)
	if err != nil || size <= 0 || size > spec.MaxDownloadBytes {
		log.Info("Invalid download size", "source", req.RemoteAddr,
			"bytes", req.URL.Query().Get("bytes"))
		writeBadRequest(rw, spec.StepDownload)
		return
	}
	if _, err := getRequestMetadata(req); err != nil {
		log.Info("Error while parsing metadata", "source", req.RemoteAddr,
			"error", err)
		writeBadRequest(rw, spec.StepDownload)
		return
	}

	rw.Header().Set("Cache-Control", "no-store")
	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	rw.WriteHeader(http.StatusOK)
	n, err := writeZeros(rw, size)
	metricBytes.WithLabelValues(string(spec.StepDownload)).Add(float64(n))
	metricRequests.WithLabelValues(string(spec.StepDownload), "200").Inc()
	if err != nil {
		log.Debug("download interrupted", "mid", mid, "sent", n, "error", err)
	}

	h.record(req, mid, model.Request{
		Kind:       spec.StepDownload,
		StartTime:  start,
		EndTime:    time.Now(),
		Bytes:      n,
		StatusCode: http.StatusOK,
	})
}

// writeZeros writes size zero bytes to w.
func writeZeros(w io.Writer, size int64) (int64, error) {
	var total int64
	for total < size {
		chunk := int64(len(zeros))
		if size-total < chunk {
			chunk = size - total
		}
		n, err := w.Write(zeros[:chunk])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Upload reads and discards the request body, then replies with the number
// of bytes received.
func (h *Handler) Upload(rw http.ResponseWriter, req *http.Request) {
	start := time.Now()
	if req.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		rw.WriteHeader(http.StatusMethodNotAllowed)
		metricRequests.WithLabelValues(string(spec.StepUpload), "405").Inc()
		return
	}
	mid, err := GetMIDFromRequest(req)
	if err != nil {
		log.Info("Received request without mid", "source", req.RemoteAddr,
			"error", err)
		writeBadRequest(rw, spec.StepUpload)
		return
	}
	if _, err := getRequestMetadata(req); err != nil {
		log.Info("Error while parsing metadata", "source", req.RemoteAddr,
			"error", err)
		writeBadRequest(rw, spec.StepUpload)
		return
	}

	n, err := io.Copy(io.Discard, req.Body)
	metricBytes.WithLabelValues(string(spec.StepUpload)).Add(float64(n))
	if err != nil {
		log.Debug("upload interrupted", "mid", mid, "received", n, "error", err)
		writeBadRequest(rw, spec.StepUpload)
		return
	}

	b, err := json.Marshal(UploadResponse{Bytes: n})
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Cache-Control", "no-store")
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	rw.Write(b)
	metricRequests.WithLabelValues(string(spec.StepUpload), "200").Inc()

	h.record(req, mid, model.Request{
		Kind:       spec.StepUpload,
		StartTime:  start,
		EndTime:    time.Now(),
		Bytes:      n,
		StatusCode: http.StatusOK,
	})
}

// GetMIDFromRequest extracts the measurement id ("mid") from a given HTTP
// request, if present.
//
// A measurement ID can be specified in two ways: via a "mid" querystring
// parameter (when access tokens are not required) or via the ID field
// in the JWT access token.
func GetMIDFromRequest(req *http.Request) (string, error) {
	// If the request includes a valid JWT token, the claim and the ID are in
	// the request's context already.
	claims := controller.GetClaim(req.Context())
	if claims != nil {
		return claims.ID, nil
	}

	// Otherwise, try getting the "mid" querystring parameter.
	if mid := req.URL.Query().Get("mid"); mid != "" {
		return mid, nil
	}

	return "", errors.New("no valid token nor mid found in the request")
}

// writeBadRequest sends a Bad Request response to the client using writer.
func writeBadRequest(writer http.ResponseWriter, kind spec.StepKind) {
	writer.Header().Set("Connection", "Close")
	writer.WriteHeader(http.StatusBadRequest)
	metricRequests.WithLabelValues(string(kind), "400").Inc()
}

func getRequestMetadata(req *http.Request) ([]model.NameValue, error) {
	// "metadata" in this context refers to any querystring parameter that is
	// not recognized as option.
	query := req.URL.Query()
	filtered := []model.NameValue{}
	for k, v := range query {
		// This maximum length for keys and values is meant to limit abuse.
		if len(k) > 200 || len(v[0]) > 200 {
			return nil, errors.New("maximum key or value length exceeded")
		}
		// Filter known options.
		if _, ok := knownOptions[k]; !ok {
			filtered = append(filtered, model.NameValue{
				Name:  k,
				Value: v[0],
			})
		}
	}
	return filtered, nil
}
