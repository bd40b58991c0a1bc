/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package node

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

const zstdSuffix = ".zst"

// httpLogger adapts zerolog to retryablehttp leveled logger.
type httpLogger struct {
	log zerolog.Logger
}

func (l httpLogger) event(e *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		e = e.Interface(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	e.Msg(msg)
}

func (l httpLogger) Error(msg string, keysAndValues ...interface{}) {
	l.event(l.log.Error(), msg, keysAndValues)
}

func (l httpLogger) Info(msg string, keysAndValues ...interface{}) {
	l.event(l.log.Info(), msg, keysAndValues)
}

func (l httpLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.event(l.log.Debug(), msg, keysAndValues)
}

func (l httpLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.event(l.log.Warn(), msg, keysAndValues)
}

// BundleFetcher keeps downloaded image bundles in local cache directory,
// zstd compressed bundles are stored decompressed.
type BundleFetcher struct {
	log      zerolog.Logger
	client   *retryablehttp.Client
	cacheDir string
	mu       sync.Mutex
}

func NewBundleFetcher(log zerolog.Logger, cacheDir string) *BundleFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 16 * time.Second
	client.Logger = httpLogger{log: log}
	return &BundleFetcher{log: log, client: client, cacheDir: cacheDir}
}

// CachePath returns local path bundle from url is kept at.
func (f *BundleFetcher) CachePath(url string) string {
	return filepath.Join(f.cacheDir, strings.TrimSuffix(filepath.Base(trimQuery(url)), zstdSuffix))
}

// Fetch downloads bundle unless it is cached already and returns its path.
func (f *BundleFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := f.CachePath(url)
	if _, err := os.Stat(path); err == nil {
		f.log.Debug().Msgf("image bundle '%s' is cached", path)
		return path, nil
	}
	if err := os.MkdirAll(f.cacheDir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create image cache dir '%s'", f.cacheDir)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", dspcommon.WrapError(dspcommon.ErrInvalid, err, "invalid image bundle url '%s'", url)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to download image bundle '%s'", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", dspcommon.NewError(dspcommon.ErrNotFound, "image bundle '%s' download failed with status %d", url, resp.StatusCode)
	}
	tmpPath := filepath.Join(f.cacheDir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	if err := f.store(resp.Body, tmpPath, strings.HasSuffix(trimQuery(url), zstdSuffix)); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrapf(err, "failed to move image bundle to '%s'", path)
	}
	f.log.Info().Msgf("image bundle '%s' downloaded to '%s'", url, path)
	return path, nil
}

func trimQuery(url string) string {
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		return url[:idx]
	}
	return url
}

func (f *BundleFetcher) store(body io.Reader, path string, compressed bool) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create '%s'", path)
	}
	defer out.Close()
	if compressed {
		decoder, err := zstd.NewReader(body)
		if err != nil {
			return errors.Wrap(err, "failed to open zstd stream")
		}
		defer decoder.Close()
		body = decoder
	}
	if _, err := io.Copy(out, body); err != nil {
		return errors.Wrapf(err, "failed to store image bundle to '%s'", path)
	}
	return out.Close()
}
