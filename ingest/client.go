// Package ingest fetches the comment stream of a post, page by page, under
// the credential pool's budgets. Progress is checkpointed durably before each
// next-page request, which makes every ingestion resumable and idempotent.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	perrors "github.com/pkg/errors"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/retry"
	"github.com/vibecheckhq/vibecheck/utils"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

// Permanent-input failures. Never retried: the checkpoint records a terminal
// state instead.
var (
	ErrPostGone     = errors.New("post deleted or access denied")
	ErrAuthRejected = errors.New("identity authentication rejected")
	// ErrRateLimited is transient at the operation level but also tells the
	// pool to cool the identity down.
	ErrRateLimited = errors.New("rate limited by scrape target")
)

// ScrapedComment is one comment as returned by the scrape target.
type ScrapedComment struct {
	ExternalId  string
	Author      string
	Text        string
	LikeCount   int64
	CommentedAt *time.Time
}

// CommentPage is one page of the paginated comment listing.
type CommentPage struct {
	Comments   []ScrapedComment
	NextCursor string
	HasMore    bool
}

// CommentAPI lists comments of an external post, one cursor-keyed page per
// call, through the given identity.
type CommentAPI interface {
	FetchCommentPage(identity model.Identity, externalPostId string, cursor string) (*CommentPage, error)
}

type commentListingResponse struct {
	Ok   int `json:"ok"`
	Data struct {
		NextCursor string `json:"next_cursor"`
		HasMore    bool   `json:"has_more"`
		Comments   []struct {
			Id        string `json:"id"`
			Author    string `json:"author"`
			Text      string `json:"text"`
			LikeCount int64  `json:"like_count"`
			CreatedAt string `json:"created_at"`
		} `json:"comments"`
	} `json:"data"`
}

// HttpCommentAPI is the production CommentAPI over the target's mobile web
// listing endpoint. Each identity's requests go through its pinned proxy.
type HttpCommentAPI struct {
	BaseURL string
}

func NewHttpCommentAPI(baseURL string) *HttpCommentAPI {
	return &HttpCommentAPI{BaseURL: baseURL}
}

func (api *HttpCommentAPI) FetchCommentPage(identity model.Identity, externalPostId string, cursor string) (*CommentPage, error) {
	client, err := api.clientFor(identity)
	if err != nil {
		return nil, err
	}

	uri := fmt.Sprintf("%s/comments?post_id=%s&cursor=%s",
		api.BaseURL, url.QueryEscape(externalPostId), url.QueryEscape(cursor))
	req, err := http.NewRequest("GET", uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+identity.SecretRef)

	res, err := client.Do(req)
	if err != nil {
		return nil, retry.Transient(perrors.Wrap(err, "comment listing request"))
	}
	defer res.Body.Close()

	if err := classifyStatus(res.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, retry.Transient(perrors.Wrap(err, "read comment listing body"))
	}

	parsed := commentListingResponse{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, retry.Transient(perrors.Wrap(err, "unmarshal comment listing"))
	}
	if parsed.Ok != 1 {
		return nil, retry.Transient(fmt.Errorf("comment listing not ok: %d", parsed.Ok))
	}

	page := &CommentPage{
		NextCursor: parsed.Data.NextCursor,
		HasMore:    parsed.Data.HasMore,
	}
	for _, c := range parsed.Data.Comments {
		var commentedAt *time.Time
		if c.CreatedAt != "" {
			if t, err := dateparse.ParseAny(c.CreatedAt); err == nil {
				commentedAt = &t
			} else {
				Logger.Log.Warnf("unparseable comment timestamp %q", c.CreatedAt)
			}
		}
		page.Comments = append(page.Comments, ScrapedComment{
			ExternalId:  c.Id,
			Author:      utils.AnonymizeHandle(c.Author),
			Text:        FlattenHtml(c.Text),
			LikeCount:   c.LikeCount,
			CommentedAt: commentedAt,
		})
	}
	return page, nil
}

func (api *HttpCommentAPI) clientFor(identity model.Identity) (*http.Client, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	if identity.ProxyURL != "" {
		proxyURL, err := url.Parse(identity.ProxyURL)
		if err != nil {
			return nil, perrors.Wrapf(err, "invalid proxy for identity %s", identity.Id)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return client, nil
}

// classifyStatus maps HTTP status to the error taxonomy: permanent input
// failures, ban/auth signals, rate limiting, and retriable server errors.
func classifyStatus(code int) error {
	switch {
	case code < 300:
		return nil
	case code == http.StatusNotFound, code == http.StatusForbidden, code == http.StatusGone:
		return ErrPostGone
	case code == http.StatusUnauthorized:
		return ErrAuthRejected
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return retry.Transient(fmt.Errorf("server error: %d", code))
	default:
		return fmt.Errorf("unexpected status: %d", code)
	}
}

// FlattenHtml converts an HTML fragment in a comment or caption to plain
// text, preserving line breaks.
func FlattenHtml(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("br").AfterHtml("\n")
	return strings.TrimSpace(doc.Text())
}
