package synccheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/slipsync/internal/domain/types"
	"github.com/okian/slipsync/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Do sends a bodiless request.
func (c *HTTPClient) Do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, target string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, target)
}

// GetJSON performs a GET request and decodes a 200 body into v.
func (c *HTTPClient) GetJSON(ctx context.Context, target string, v any) (int, error) {
	resp, err := c.Get(ctx, target)
	if err != nil {
		return 0, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.Unmarshal(body, v)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()
	return io.ReadAll(resp.Body)
}

// request maps an edit onto its route.
func request(base string, op Op) (method, target string) {
	path := base + "/betslip/bets/" + url.PathEscape(op.BetID)
	switch op.Kind {
	case OpRemove:
		return http.MethodDelete, path
	case OpToggle:
		return http.MethodPost, path + "/toggle"
	default:
		return http.MethodPost, path
	}
}

// submitOps sends ops with a worker pool and records each reply status.
func submitOps(ctx context.Context, config *Config, ops []Op, stats *Stats) {
	logger.Get().Info(ctx, "submitting betslip edits",
		logger.Int("numOps", len(ops)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)

	var (
		changed   int64
		noop      int64
		failed    int64
		submitted int64
	)

	work := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				if ctx.Err() != nil {
					return
				}
				status, ok := submitSingleOp(ctx, client, config.URLs[ops[idx].Target], ops[idx])
				ops[idx].Status = status

				atomic.AddInt64(&submitted, 1)
				switch {
				case status == 0 || status >= http.StatusBadRequest:
					atomic.AddInt64(&failed, 1)
				case ok:
					atomic.AddInt64(&changed, 1)
				default:
					atomic.AddInt64(&noop, 1)
				}

				if config.Verbose {
					logger.Get().Debug(ctx, "edit submitted",
						logger.Int("seq", ops[idx].Seq),
						logger.String("kind", ops[idx].Kind),
						logger.String("betId", ops[idx].BetID),
						logger.Int("status", status))
				}
				if config.Pause > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(config.Pause):
					}
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for i := range ops {
			select {
			case <-ctx.Done():
				return
			case work <- i:
			}
		}
	}()

	wg.Wait()

	stats.OpsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.OpsChanged = int(atomic.LoadInt64(&changed))
	stats.OpsNoop = int(atomic.LoadInt64(&noop))
	stats.OpsFailed = int(atomic.LoadInt64(&failed))

	logger.Get().Info(ctx, "edit submission completed",
		logger.Int("changed", stats.OpsChanged),
		logger.Int("noop", stats.OpsNoop),
		logger.Int("failed", stats.OpsFailed))
}

// submitSingleOp sends one edit and reports its status and whether the
// slip changed.
func submitSingleOp(ctx context.Context, client *HTTPClient, base string, op Op) (int, bool) {
	method, target := request(base, op)
	resp, err := client.Do(ctx, method, target)
	if err != nil {
		return 0, false
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return resp.StatusCode, false
	}
	var m types.Mutation
	if err := json.Unmarshal(body, &m); err != nil {
		return resp.StatusCode, false
	}
	return resp.StatusCode, m.Changed
}
