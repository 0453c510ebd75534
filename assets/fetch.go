package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Fetcher downloads model files that are not present locally.
type Fetcher struct {
	client *resty.Client
	log    *zap.Logger
}

func NewFetcher(timeout time.Duration, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		client: resty.New().SetTimeout(timeout),
		log:    log,
	}
}

// Ensure downloads url to path unless path already exists. The file only
// appears at path once the whole body has been written. There is a single
// attempt; failures are returned to the caller.
func (f *Fetcher) Ensure(ctx context.Context, url, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	defer os.Remove(tmp)

	f.log.Info("downloading model", zap.String("url", url), zap.String("path", path))
	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(url)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("download %s: %s", url, resp.Status())
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	f.log.Info("model downloaded", zap.String("path", path), zap.Int64("bytes", resp.Size()))
	return nil
}
