// Package publish performs the one outward-facing side effect of the
// pipeline: posting approved content to the publish target. Every outbound
// call is preceded by a durable attempt row, which is what makes publishing
// idempotent and the retry ceiling enforceable across process restarts.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	perrors "github.com/pkg/errors"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/retry"
)

// ErrContentRefused is a definitive rejection by the publish target (policy
// violation, malformed media). Retrying cannot help; the content is rejected.
var ErrContentRefused = errors.New("content refused by publish target")

// ExternalClient creates a post on the publish target and returns its
// external id.
type ExternalClient interface {
	CreatePost(ctx context.Context, content *model.GeneratedContent) (string, error)
}

// HttpExternalClient is the production client over the publish target's REST
// surface.
type HttpExternalClient struct {
	BaseURL string
	http    *http.Client
}

func NewHttpExternalClient(baseURL string) *HttpExternalClient {
	return &HttpExternalClient{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type createPostRequest struct {
	Title   string `json:"title"`
	Caption string `json:"caption"`
	// Client-side key so the target can dedupe a retried create.
	IdempotencyKey string `json:"idempotency_key"`
}

type createPostResponse struct {
	Id string `json:"id"`
}

func (c *HttpExternalClient) CreatePost(ctx context.Context, content *model.GeneratedContent) (string, error) {
	payload, err := json.Marshal(createPostRequest{
		Title:          content.Title,
		Caption:        content.Caption,
		IdempotencyKey: content.Id,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/posts", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+os.Getenv("PUBLISH_TARGET_TOKEN"))

	res, err := c.http.Do(req)
	if err != nil {
		return "", retry.Transient(perrors.Wrap(err, "create post request"))
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode < 300:
	case res.StatusCode == http.StatusUnprocessableEntity, res.StatusCode == http.StatusForbidden:
		return "", ErrContentRefused
	case res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests:
		return "", retry.Transient(fmt.Errorf("publish target error: %d", res.StatusCode))
	default:
		return "", fmt.Errorf("unexpected publish status: %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", retry.Transient(perrors.Wrap(err, "read publish response"))
	}
	parsed := createPostResponse{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", perrors.Wrap(err, "unmarshal publish response")
	}
	if parsed.Id == "" {
		return "", perrors.New("publish response missing post id")
	}
	return parsed.Id, nil
}
