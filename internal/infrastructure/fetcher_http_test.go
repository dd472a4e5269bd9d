package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dl-progress/internal/domain"
)

type fixedSpace struct {
	free uint64
}

func (s fixedSpace) FreeBytes(string) (uint64, error) { return s.free, nil }

type progressLog struct {
	mu    sync.Mutex
	ticks [][2]int64
}

func (p *progressLog) record(written, expected int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = append(p.ticks, [2]int64{written, expected})
}

func (p *progressLog) last() [2]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks[len(p.ticks)-1]
}

func newTestFetcher(t *testing.T, space domain.SpaceChecker) (*HTTPFetcher, string) {
	t.Helper()
	dir := t.TempDir()
	config := &domain.FetchConfig{
		DownloadDir:      dir,
		ProgressInterval: 5 * time.Millisecond,
	}
	return NewHTTPFetcher(config, space, nil), dir
}

func TestHTTPFetcher_Success(t *testing.T) {
	body := strings.Repeat("x", 100*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	fetcher, dir := newTestFetcher(t, nil)
	job := domain.NewFetchJob(srv.URL+"/files/movie.mkv", "", "")
	progress := &progressLog{}

	path, err := fetcher.Fetch(context.Background(), job, progress.record)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "movie.mkv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, len(body))

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, [2]int64{int64(len(body)), int64(len(body))}, progress.last())
}

func TestHTTPFetcher_ContentDisposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../report.pdf"`)
		w.Write([]byte("pdf"))
	}))
	defer srv.Close()

	fetcher, dir := newTestFetcher(t, nil)
	job := domain.NewFetchJob(srv.URL+"/download?id=1", "", "")

	path, err := fetcher.Fetch(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.pdf"), path)
}

func TestHTTPFetcher_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher, dir := newTestFetcher(t, nil)
	job := domain.NewFetchJob(srv.URL+"/missing.bin", "", "")

	_, err := fetcher.Fetch(context.Background(), job, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHTTPFetcher_InsufficientSpace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer srv.Close()

	fetcher, _ := newTestFetcher(t, fixedSpace{free: 10})
	job := domain.NewFetchJob(srv.URL+"/big.bin", "", "")

	_, err := fetcher.Fetch(context.Background(), job, nil)
	assert.ErrorIs(t, err, ErrInsufficientSpace)
}

func TestHTTPFetcher_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	fetcher, dir := newTestFetcher(t, nil)
	job := domain.NewFetchJob(srv.URL+"/slow.bin", "", "")
	progress := &progressLog{}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := fetcher.Fetch(ctx, job, progress.record)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		progress.mu.Lock()
		defer progress.mu.Unlock()
		return len(progress.ticks) > 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not stop")
	}

	_, err := os.Stat(filepath.Join(dir, "slow.bin.part"))
	assert.True(t, os.IsNotExist(err))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "a_b.txt", sanitizeFileName("a:b.txt"))
	assert.Equal(t, "c.txt", sanitizeFileName("/etc/../c.txt"))
	assert.Empty(t, sanitizeFileName(".."))
}

func TestDiskSpaceChecker_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet", "created")

	free, err := NewDiskSpaceChecker().FreeBytes(dir)
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}
