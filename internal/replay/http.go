package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/smileboard/internal/domain/types"
	"github.com/okian/smileboard/pkg/logger"
)

// httpClient wraps http.Client with JSON helpers.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *httpClient) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *httpClient) post(ctx context.Context, path string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *httpClient) analytics(ctx context.Context) (types.Summary, error) {
	var s types.Summary
	code, err := c.get(ctx, "/analytics", &s)
	if err != nil {
		return s, err
	}
	if code != http.StatusOK {
		return s, fmt.Errorf("analytics returned status %d", code)
	}
	return s, nil
}

// submit posts results with cfg.Workers submitters. A duplicate is posted
// right after its original by the same submitter.
func submit(ctx context.Context, cfg *Config, c *httpClient, results []Result, stats *Stats) {
	log := logger.Get()
	var submitted, accepted, failed int64

	ch := make(chan Result, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range ch {
				times := 1
				if r.Duplicate {
					times = 2
				}
				for range times {
					atomic.AddInt64(&submitted, 1)
					var ack AckResponse
					code, err := c.post(ctx, "/results", r, &ack)
					if err != nil || code != http.StatusAccepted {
						atomic.AddInt64(&failed, 1)
						log.Warn(ctx, "result rejected", logger.String("request_id", r.RequestID), logger.Int("status", code), logger.Error(err))
						continue
					}
					atomic.AddInt64(&accepted, 1)
					if cfg.Verbose {
						log.Debug(ctx, "result accepted", logger.String("request_id", ack.RequestID))
					}
				}
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, r := range results {
			select {
			case <-ctx.Done():
				return
			case ch <- r:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(atomic.LoadInt64(&submitted))
	stats.Accepted = int(atomic.LoadInt64(&accepted))
	stats.Failed = int(atomic.LoadInt64(&failed))
}
