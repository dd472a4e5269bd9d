package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
)

// ErrInsufficientSpace is returned when the target filesystem cannot hold the download
var ErrInsufficientSpace = errors.New("insufficient disk space")

// HTTPFetcher downloads a job's URL into the download directory
type HTTPFetcher struct {
	client *http.Client
	config *domain.FetchConfig
	space  domain.SpaceChecker
	logger *zap.Logger
}

// NewHTTPFetcher creates a new HTTP fetcher. space may be nil to skip the free space check.
func NewHTTPFetcher(config *domain.FetchConfig, space domain.SpaceChecker, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: config.RequestTimeout},
		config: config,
		space:  space,
		logger: logger,
	}
}

// Fetch streams the body into a .part file, renames it on success and
// reports progress at most once per progress interval plus a final tick.
func (f *HTTPFetcher) Fetch(ctx context.Context, job *domain.FetchJob, progress domain.ProgressFunc) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	expected := resp.ContentLength
	if expected < 0 {
		expected = 0
	}

	dir := job.Destination
	if dir == "" {
		dir = f.config.DownloadDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	if err := f.checkSpace(dir, expected); err != nil {
		return "", err
	}

	target := filepath.Join(dir, fileName(job, resp))
	partial := target + ".part"

	out, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	f.logger.Debug("Fetch started",
		zap.String("id", job.ID),
		zap.String("target", target),
		zap.Int64("expected", expected))

	written, err := f.copyWithProgress(ctx, out, resp.Body, expected, progress)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partial)
		return "", err
	}
	if expected > 0 && written != expected {
		os.Remove(partial)
		return "", fmt.Errorf("short body: got %d of %d bytes", written, expected)
	}

	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return target, nil
}

// copyWithProgress runs the copy loop in a goroutine and polls the byte
// counter on a ticker.
func (f *HTTPFetcher) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, expected int64, progress domain.ProgressFunc) (int64, error) {
	var written atomic.Int64
	done := make(chan error, 1)

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					done <- fmt.Errorf("failed to write file: %w", werr)
					return
				}
				written.Add(int64(n))
			}
			if err == io.EOF {
				done <- nil
				return
			}
			if err != nil {
				done <- fmt.Errorf("failed to read body: %w", err)
				return
			}
		}
	}()

	interval := f.config.ProgressInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	report := func() {
		if progress == nil {
			return
		}
		n := written.Load()
		if expected > 0 && n > expected {
			return
		}
		progress(n, expected)
	}

	for {
		select {
		case <-ticker.C:
			report()
		case err := <-done:
			if err != nil {
				if ctx.Err() != nil {
					return written.Load(), ctx.Err()
				}
				return written.Load(), err
			}
			report()
			return written.Load(), nil
		}
	}
}

func (f *HTTPFetcher) checkSpace(dir string, expected int64) error {
	if f.space == nil || expected <= 0 {
		return nil
	}
	free, err := f.space.FreeBytes(dir)
	if err != nil {
		f.logger.Warn("Free space check failed", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	if free < uint64(expected)+f.config.MinFreeBytes {
		return fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, expected, free)
	}
	return nil
}

// fileName picks the file name from Content-Disposition, the job title or the URL
func fileName(job *domain.FetchJob, resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := sanitizeFileName(params["filename"]); name != "" {
				return name
			}
		}
	}
	if name := sanitizeFileName(job.Title); name != "" {
		return name
	}
	if name := sanitizeFileName(domain.TitleFromURL(job.URL)); name != "" {
		return name
	}
	return job.ID
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
