package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-asset-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadStatusTransitions(t *testing.T) {
	newDL := func() *FileDownload {
		return NewFileDownload(101, models.ManifestFile{Name: "a.png"}, t.TempDir())
	}

	t.Run("Happy path", func(t *testing.T) {
		dl := newDL()
		assert.Equal(t, StatusInitialized, dl.Status())
		assert.True(t, dl.SetStatusWaiting())
		assert.True(t, dl.SetStatusOngoing())
		dl.SetStatusDone()
		assert.Equal(t, StatusDone, dl.Status())
	})

	t.Run("Waiting only from initialized", func(t *testing.T) {
		dl := newDL()
		require.True(t, dl.SetStatusWaiting())
		assert.False(t, dl.SetStatusWaiting())
	})

	t.Run("Cancel blocks start", func(t *testing.T) {
		dl := newDL()
		dl.SetStatusCancelled()
		assert.False(t, dl.SetStatusOngoing())
		assert.True(t, dl.Cancelled())
	})

	t.Run("Cancel after done keeps done", func(t *testing.T) {
		dl := newDL()
		dl.SetStatusWaiting()
		dl.SetStatusOngoing()
		dl.SetStatusDone()
		dl.SetStatusCancelled()
		assert.Equal(t, StatusDone, dl.Status())
	})

	t.Run("Done after cancel keeps cancelled", func(t *testing.T) {
		dl := newDL()
		dl.SetStatusCancelled()
		dl.SetStatusDone()
		assert.Equal(t, StatusCancelled, dl.Status())
	})

	t.Run("Error is terminal", func(t *testing.T) {
		dl := newDL()
		dl.SetStatusWaiting()
		dl.SetStatusOngoing()
		dl.SetStatusError()
		assert.False(t, dl.SetStatusOngoing())
		dl.SetStatusCancelled()
		assert.Equal(t, StatusError, dl.Status())
	})
}

func TestGetDownloadListDirectURLs(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/assets/download", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"files": [
			{"name": "RustyMetal001_COL_4K.png", "url": "https://cdn.example.com/col", "size_bytes": 1024},
			{"name": "RustyMetal001_NRM_4K.png", "url": "https://cdn.example.com/nrm", "size_bytes": 2048}
		]}`))
	}))

	files, resp := client.GetDownloadList(models.DownloadAssetEntry{ID: 101, Sizes: []string{"4K"}})
	require.True(t, resp.OK)
	require.Len(t, files, 2)
	assert.Equal(t, "https://cdn.example.com/col", files[0].URL)
	assert.Equal(t, int64(2048), files[1].SizeBytes)
}

func TestGetDownloadListLegacyResolution(t *testing.T) {
	var resolveCalls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/assets/download":
			_, _ = w.Write([]byte(`{"files": [
				{"name": "ArmChair042_SOURCE.fbx", "download_id": "dl-abc-123", "size_bytes": 4096}
			]}`))
		case strings.HasPrefix(r.URL.Path, "/downloads/"):
			resolveCalls++
			assert.Equal(t, "/downloads/dl-abc-123", r.URL.Path)
			_, _ = w.Write([]byte(`{"payload": {"url": "https://cdn.example.com/resolved"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	files, resp := client.GetDownloadList(models.DownloadAssetEntry{ID: 303})
	require.True(t, resp.OK)
	require.Len(t, files, 1)
	assert.Equal(t, "https://cdn.example.com/resolved", files[0].URL)
	assert.Equal(t, 1, resolveCalls)
}

func TestGetDownloadListEmpty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"files": []}`))
	}))

	_, resp := client.GetDownloadList(models.DownloadAssetEntry{ID: 101})
	assert.Equal(t, ErrMissingURLs, resp.Error)
}

func TestGetDownloadListUnresolvableURL(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/assets/download":
			_, _ = w.Write([]byte(`{"files": [{"name": "x.png", "download_id": "dl-1", "size_bytes": 8}]}`))
		default:
			_, _ = w.Write([]byte(`{"payload": {"url": ""}}`))
		}
	}))

	_, resp := client.GetDownloadList(models.DownloadAssetEntry{ID: 101})
	assert.Equal(t, ErrMissingURLs, resp.Error)
}

func fileServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(content)))
		_, _ = w.Write(content)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDownloadFileSuccess(t *testing.T) {
	content := bytes.Repeat([]byte{'x'}, 4096)
	server := fileServer(t, content)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dir := t.TempDir()
	dl := NewFileDownload(101, models.ManifestFile{
		Name:      "RustyMetal001_COL_4K.png",
		URL:       server.URL + "/file",
		SizeBytes: int64(len(content)),
	}, dir)

	resp := client.DownloadFile(dl)
	require.True(t, resp.OK, "unexpected error: %s", resp.Error)
	assert.Equal(t, StatusDone, dl.Status())
	assert.Equal(t, int64(len(content)), dl.BytesDownloaded())

	got, err := os.ReadFile(dl.Path(true))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// The rename to the final name is the orchestrator's job.
	_, err = os.Stat(dl.Path(false))
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadFileIdempotent(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	t.Cleanup(server.Close)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dir := t.TempDir()
	content := []byte("already here")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), content, 0600))

	dl := NewFileDownload(101, models.ManifestFile{
		Name:      "a.png",
		URL:       server.URL + "/file",
		SizeBytes: int64(len(content)),
	}, dir)

	resp := client.DownloadFile(dl)
	require.True(t, resp.OK)
	assert.Equal(t, StatusDone, dl.Status())
	assert.Zero(t, hits, "existing file must not be downloaded again")
}

func TestDownloadFileCompleteTempShortCircuits(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	t.Cleanup(server.Close)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dir := t.TempDir()
	content := []byte("streamed in an earlier round")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"+TempSuffix), content, 0600))

	dl := NewFileDownload(101, models.ManifestFile{
		Name:      "a.png",
		URL:       server.URL + "/file",
		SizeBytes: int64(len(content)),
	}, dir)

	resp := client.DownloadFile(dl)
	require.True(t, resp.OK)
	assert.Equal(t, StatusDone, dl.Status())
	assert.Equal(t, int64(len(content)), dl.BytesDownloaded())
	assert.Zero(t, hits, "complete temp file must not be downloaded again")

	// Still the temp name. The final rename is the orchestrator's job.
	_, err := os.Stat(dl.Path(true))
	require.NoError(t, err)
	_, err = os.Stat(dl.Path(false))
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadFileSizeMismatchRedownloads(t *testing.T) {
	content := bytes.Repeat([]byte{'y'}, 128)
	server := fileServer(t, content)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dir := t.TempDir()
	// Stale final file with the wrong size does not short-circuit.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("stale"), 0600))

	dl := NewFileDownload(101, models.ManifestFile{
		Name:      "a.png",
		URL:       server.URL + "/file",
		SizeBytes: int64(len(content)),
	}, dir)

	resp := client.DownloadFile(dl)
	require.True(t, resp.OK)
	got, err := os.ReadFile(dl.Path(true))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadFileCancelledBeforeStart(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	t.Cleanup(server.Close)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dl := NewFileDownload(101, models.ManifestFile{Name: "a.png", URL: server.URL}, t.TempDir())
	dl.SetStatusCancelled()

	resp := client.DownloadFile(dl)
	assert.Equal(t, ErrUserCancel, resp.Error)
	assert.Zero(t, hits)
}

func TestDownloadFileMissingSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked transfer leaves the content length unknown.
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("part"))
		flusher.Flush()
	}))
	t.Cleanup(server.Close)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dl := NewFileDownload(101, models.ManifestFile{Name: "a.png", URL: server.URL}, t.TempDir())
	resp := client.DownloadFile(dl)
	assert.Equal(t, ErrMissingSize, resp.Error)
	assert.Equal(t, StatusError, dl.Status())
}

func TestDownloadFileEmptyStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with no body at all.
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dl := NewFileDownload(101, models.ManifestFile{Name: "a.png", URL: server.URL}, t.TempDir())
	resp := client.DownloadFile(dl)
	assert.Equal(t, ErrMissingStream, resp.Error)
	assert.Equal(t, StatusError, dl.Status())
}

func TestDownloadFileAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dl := NewFileDownload(101, models.ManifestFile{Name: "a.png", URL: server.URL}, t.TempDir())
	resp := client.DownloadFile(dl)
	assert.Equal(t, ErrNotAuthorized, resp.Error)
	assert.Equal(t, StatusError, dl.Status())
}

func TestDownloadFileChecksumMismatch(t *testing.T) {
	content := []byte("checksummed content")
	server := fileServer(t, content)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dl := NewFileDownload(101, models.ManifestFile{
		Name:      "a.png",
		URL:       server.URL + "/file",
		SizeBytes: int64(len(content)),
		Checksum:  strings.Repeat("0", 64),
	}, t.TempDir())

	resp := client.DownloadFile(dl)
	assert.Equal(t, ErrChecksum, resp.Error)
	assert.Equal(t, StatusError, dl.Status())

	_, err := os.Stat(dl.Path(true))
	assert.True(t, os.IsNotExist(err), "temp file must be removed on checksum failure")
}

func TestDownloadFileCancelMidStream(t *testing.T) {
	const chunk = 256 * 1024
	proceed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(2*chunk))
		_, _ = w.Write(bytes.Repeat([]byte{'a'}, chunk))
		w.(http.Flusher).Flush()
		<-proceed
		_, _ = w.Write(bytes.Repeat([]byte{'b'}, chunk))
	}))
	t.Cleanup(server.Close)
	client := NewClient(server.URL, server.Client(), models.Config{})

	dl := NewFileDownload(101, models.ManifestFile{
		Name:      "a.png",
		URL:       server.URL + "/file",
		SizeBytes: 2 * chunk,
	}, t.TempDir())

	go func() {
		for dl.BytesDownloaded() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		dl.SetStatusCancelled()
		close(proceed)
	}()

	resp := client.DownloadFile(dl)
	assert.Equal(t, ErrUserCancel, resp.Error)
	assert.True(t, dl.Cancelled())

	_, err := os.Stat(dl.Path(true))
	assert.True(t, os.IsNotExist(err), "partial file must be removed on cancel")
}
