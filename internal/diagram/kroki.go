package diagram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"resty.dev/v3"
)

// Kroki compiles diagrams through a kroki server's POST /mermaid/svg.
type Kroki struct {
	httpClient       *resty.Client
	maxRetryAttempts uint
}

func NewKroki(baseURL string, timeout time.Duration) *Kroki {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "text/plain")
	client.SetHeader("Accept", "image/svg+xml")

	return &Kroki{
		httpClient:       client,
		maxRetryAttempts: 2,
	}
}

func (k *Kroki) Close() error {
	return k.httpClient.Close()
}

// Compile retries transport errors and 5xx responses. A 4xx means kroki
// rejected the source and is returned at once.
func (k *Kroki) Compile(ctx context.Context, source string) ([]byte, error) {
	var svg []byte
	err := retry.Do(
		func() error {
			response, err := k.httpClient.R().
				SetContext(ctx).
				SetBody(source).
				Post("/mermaid/svg")
			if err != nil {
				return fmt.Errorf("httpClient.Post > %w", err)
			}
			if response.StatusCode() >= 500 {
				return fmt.Errorf("response error %d", response.StatusCode())
			}
			if response.IsError() {
				return retry.Unrecoverable(fmt.Errorf("response error %d: %s", response.StatusCode(), response.String()))
			}
			svg = response.Bytes()
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(k.maxRetryAttempts+1),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return svg, nil
}
