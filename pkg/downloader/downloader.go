package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/logging"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
)

// Config holds downloader settings.
type Config struct {
	// BaseURL serves dump_YYYY_MM.xml files.
	BaseURL string
	// StagingDir receives one file per period.
	StagingDir string
	// Timeout bounds a single fetch, including the body transfer.
	Timeout time.Duration
}

// statusError is a non-2xx response from the dump server. It tells the caller
// whether trying again later could help; Fetch itself never retries.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

func (e *statusError) IsRetryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Downloader fetches monthly dumps into the staging directory.
type Downloader interface {
	// Fetch returns the local path of the period's dump, downloading it only
	// when it is not staged yet.
	Fetch(ctx context.Context, period models.Period) (string, error)
}

type httpDownloader struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ Downloader = (*httpDownloader)(nil)

// New creates a Downloader. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, logger *zap.Logger) (Downloader, error) {
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(os.TempDir(), "danovyhlidac")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid dump base URL: %w", err)
	}
	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &httpDownloader{
		cfg:    cfg,
		client: client,
		logger: logger.Named("downloader"),
	}, nil
}

// StagedPath is the deterministic local path for a period.
func StagedPath(stagingDir string, period models.Period) string {
	return filepath.Join(stagingDir, period.DumpName())
}

func (d *httpDownloader) Fetch(ctx context.Context, period models.Period) (string, error) {
	target := StagedPath(d.cfg.StagingDir, period)

	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		d.logger.Info("Dump already staged, skipping download",
			zap.String("period", period.String()),
			zap.String("path", target))
		return target, nil
	}

	source, err := d.sourceURL(period)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindTransport, "build dump URL")
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	written, err := d.download(ctx, source, target)
	if err != nil {
		d.logger.Error("Dump download failed",
			zap.String("period", period.String()),
			zap.String("url", logging.SanitizeURL(source)),
			zap.Error(err))
		return "", err
	}

	d.logger.Info("Dump downloaded",
		zap.String("period", period.String()),
		zap.String("path", target),
		zap.Int64("bytes", written),
		zap.Duration("duration", time.Since(start)))
	return target, nil
}

func (d *httpDownloader) sourceURL(period models.Period) (string, error) {
	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	base.Path = path.Join("/", base.Path, period.DumpName())
	return base.String(), nil
}

// download streams source into a temp file next to target and renames it on
// success, so a failed transfer never leaves a file that looks staged.
func (d *httpDownloader) download(ctx context.Context, source, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransport, "create request")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransport, "fetch dump")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, apperrors.Wrap(&statusError{code: resp.StatusCode}, apperrors.KindTransport, "fetch dump")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindTransport, "stream dump")
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return 0, fmt.Errorf("failed to move dump into place: %w", err)
	}
	committed = true

	return written, nil
}
