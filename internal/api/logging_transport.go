package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport wraps an http.RoundTripper and appends every API
// exchange to a trace file. The Authorization header is redacted, and
// only JSON bodies are captured; download streams are logged as headers
// only.
type LoggingTransport struct {
	Transport http.RoundTripper

	mu      sync.Mutex
	logFile *os.File
	writer  *bufio.Writer
}

// NewLoggingTransport opens the trace file for appending. A nil
// transport falls back to http.DefaultTransport.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening API trace file %s: %w", logFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	logged := req.Clone(req.Context())
	if logged.Header.Get("Authorization") != "" {
		logged.Header.Set("Authorization", "Bearer <redacted>")
	}
	reqDump, err := httputil.DumpRequestOut(logged, shouldDumpBody(req.Header.Get("Content-Type")))
	if err != nil {
		log.WithError(err).Debug("Failed to dump API request for tracing")
		reqDump = []byte(fmt.Sprintf("%s %s (dump failed)", req.Method, req.URL))
	}

	resp, rtErr := t.Transport.RoundTrip(req)
	duration := time.Since(start)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.writeEntry(fmt.Sprintf("--- Request %s ---\n%s", start.Format(time.RFC3339), reqDump))

	switch {
	case rtErr != nil:
		t.writeEntry(fmt.Sprintf("--- Transport error after %v ---\n%s", duration, rtErr))
	case shouldDumpBody(resp.Header.Get("Content-Type")):
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			t.writeEntry(fmt.Sprintf("--- Response %s after %v ---\n(body read failed: %v)", resp.Status, duration, readErr))
			resp.Body = io.NopCloser(bytes.NewReader(nil))
			break
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		t.writeEntry(fmt.Sprintf("--- Response %s after %v ---\n%s", resp.Status, duration, body))
	default:
		headers, dumpErr := httputil.DumpResponse(resp, false)
		if dumpErr != nil {
			headers = []byte(resp.Status)
		}
		t.writeEntry(fmt.Sprintf("--- Response %s after %v (body not logged) ---\n%s", resp.Status, duration, headers))
	}

	if err := t.writer.Flush(); err != nil {
		log.WithError(err).Warn("Failed to flush API trace file")
	}
	return resp, rtErr
}

// shouldDumpBody limits body capture to JSON payloads, keeping binary
// download streams out of the trace.
func shouldDumpBody(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}

func (t *LoggingTransport) writeEntry(entry string) {
	if _, err := t.writer.WriteString(entry + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing API trace: %v\n", err)
	}
}

// Close flushes pending entries and closes the trace file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writer.Flush(); err != nil {
		t.logFile.Close()
		return fmt.Errorf("flushing API trace file: %w", err)
	}
	return t.logFile.Close()
}
