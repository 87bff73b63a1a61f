// Package backend talks to the question-answering service.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"resty.dev/v3"

	"tutorbook/internal/answer"
)

// ErrBackend marks every failure that came from the service or the network
// rather than from the caller's input.
var ErrBackend = errors.New("backend request failed")

const DefaultTimeout = 60 * time.Second

type Client struct {
	httpClient *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")

	return &Client{httpClient: client}
}

func (c *Client) Close() error {
	return c.httpClient.Close()
}

// Ask validates q and posts it once. A complete Response is returned or an
// error; there is no partial result and no retry.
func (c *Client) Ask(ctx context.Context, q answer.Question) (answer.Response, error) {
	if err := q.Validate(); err != nil {
		return answer.Response{}, err
	}

	response, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(q).
		SetResult(&answer.Response{}).
		Post("/generate-answer")
	if err != nil {
		return answer.Response{}, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if response.IsError() {
		return answer.Response{}, fmt.Errorf("%w: response error %d: %s", ErrBackend, response.StatusCode(), response.String())
	}

	resp, ok := response.Result().(*answer.Response)
	if !ok || resp == nil {
		return answer.Response{}, fmt.Errorf("%w: empty response body", ErrBackend)
	}
	if err := resp.Validate(); err != nil {
		return answer.Response{}, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return *resp, nil
}

// Options fetches the four selector lists in parallel. If any lookup fails
// the whole result falls back to FallbackOptions.
func (c *Client) Options(ctx context.Context) answer.Options {
	var (
		subjects struct {
			Subjects []string `json:"subjects"`
		}
		levels struct {
			Levels []string `json:"levels"`
		}
		styles struct {
			LearningStyles []string `json:"learning_styles"`
		}
		languages struct {
			Languages []string `json:"languages"`
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.getJSON(gctx, "/subjects", &subjects) })
	g.Go(func() error { return c.getJSON(gctx, "/levels", &levels) })
	g.Go(func() error { return c.getJSON(gctx, "/learning-styles", &styles) })
	g.Go(func() error { return c.getJSON(gctx, "/languages", &languages) })
	if err := g.Wait(); err != nil {
		return answer.FallbackOptions()
	}

	return answer.Options{
		Subjects:       nonNil(subjects.Subjects),
		Levels:         nonNil(levels.Levels),
		LearningStyles: nonNil(styles.LearningStyles),
		Languages:      nonNil(languages.Languages),
	}
}

// Health returns nil when the service reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/health", &body); err != nil {
		return err
	}
	if body.Status != "healthy" {
		return fmt.Errorf("%w: status %q", ErrBackend, body.Status)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	response, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrBackend, path, err)
	}
	if response.IsError() {
		return fmt.Errorf("%w: GET %s: response error %d", ErrBackend, path, response.StatusCode())
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
