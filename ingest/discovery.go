package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/araddon/dateparse"
	perrors "github.com/pkg/errors"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/credpool"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/retry"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

// ScrapedPost is one post as returned by the target's recent-post listing,
// with its engagement counters at listing time.
type ScrapedPost struct {
	ExternalId   string
	Caption      string
	LikeCount    int64
	CommentCount int64
	ShareCount   int64
	PostedAt     *time.Time
}

// PostAPI lists the recent posts of an account through the given identity.
type PostAPI interface {
	FetchRecentPosts(identity model.Identity, externalHandle string) ([]ScrapedPost, error)
}

type postListingResponse struct {
	Ok   int `json:"ok"`
	Data struct {
		Posts []struct {
			Id           string `json:"id"`
			Caption      string `json:"caption"`
			LikeCount    int64  `json:"like_count"`
			CommentCount int64  `json:"comment_count"`
			ShareCount   int64  `json:"share_count"`
			PostedAt     string `json:"posted_at"`
		} `json:"posts"`
	} `json:"data"`
}

func (api *HttpCommentAPI) FetchRecentPosts(identity model.Identity, externalHandle string) ([]ScrapedPost, error) {
	client, err := api.clientFor(identity)
	if err != nil {
		return nil, err
	}

	uri := fmt.Sprintf("%s/posts?handle=%s", api.BaseURL, url.QueryEscape(externalHandle))
	req, err := http.NewRequest("GET", uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+identity.SecretRef)

	res, err := client.Do(req)
	if err != nil {
		return nil, retry.Transient(perrors.Wrap(err, "post listing request"))
	}
	defer res.Body.Close()

	if err := classifyStatus(res.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, retry.Transient(perrors.Wrap(err, "read post listing body"))
	}

	parsed := postListingResponse{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, retry.Transient(perrors.Wrap(err, "unmarshal post listing"))
	}
	if parsed.Ok != 1 {
		return nil, retry.Transient(fmt.Errorf("post listing not ok: %d", parsed.Ok))
	}

	posts := make([]ScrapedPost, 0, len(parsed.Data.Posts))
	for _, p := range parsed.Data.Posts {
		posts = append(posts, ScrapedPost{
			ExternalId:   p.Id,
			Caption:      FlattenHtml(p.Caption),
			LikeCount:    p.LikeCount,
			CommentCount: p.CommentCount,
			ShareCount:   p.ShareCount,
			PostedAt:     parseTimestamp(p.PostedAt),
		})
	}
	return posts, nil
}

func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		Logger.Log.Warnf("unparseable post timestamp %q", raw)
		return nil
	}
	return &t
}

// Discoverer refreshes a target's recent posts so the comment ingestion loop
// has fresh work. One listing request per discovery, under the same identity
// budgets as page fetches.
type Discoverer struct {
	store  Store
	api    PostAPI
	pool   *credpool.Pool
	policy retry.Policy
}

func NewDiscoverer(store Store, api PostAPI, pool *credpool.Pool, cfg *app_config.PipelineAppConfig) *Discoverer {
	return &Discoverer{
		store:  store,
		api:    api,
		pool:   pool,
		policy: retry.NewPolicy(cfg.INGEST_RETRY),
	}
}

// Discover lists the target's recent posts and upserts them on the
// (target_id, external_post_id) key, refreshing engagement counters of posts
// already known. Returns the number of post rows written. Inactive targets
// are skipped without a request.
func (d *Discoverer) Discover(ctx context.Context, targetId string) (int, error) {
	target, err := d.store.GetTarget(targetId)
	if err != nil {
		return 0, perrors.Wrapf(err, "load target %s", targetId)
	}
	if !target.Active {
		Logger.Log.Infof("target %s inactive, skipping discovery", target.ExternalHandle)
		return 0, nil
	}

	var posts []ScrapedPost
	err = d.policy.Do(ctx, func() error {
		identity, err := d.pool.Checkout()
		if err != nil {
			return err
		}

		if delay := d.pool.RecordRequest(identity.Id); delay > 0 {
			Logger.Log.Infof("global ceiling reached, waiting %s", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}

		p, err := d.api.FetchRecentPosts(identity, target.ExternalHandle)
		switch {
		case err == nil:
			d.pool.Checkin(identity.Id, credpool.OutcomeSuccess)
			posts = p
			return nil
		case errors.Is(err, ErrRateLimited):
			d.pool.Checkin(identity.Id, credpool.OutcomeRateLimited)
			return retry.Transient(err)
		case errors.Is(err, ErrAuthRejected):
			d.pool.Checkin(identity.Id, credpool.OutcomeAuthFailed)
			return retry.Transient(err)
		default:
			d.pool.Checkin(identity.Id, credpool.OutcomeError)
			return err
		}
	})
	if err != nil {
		return 0, err
	}

	written, err := d.store.UpsertPosts(targetId, posts)
	if err != nil {
		return 0, perrors.Wrap(err, "store discovered posts")
	}
	return written, nil
}
