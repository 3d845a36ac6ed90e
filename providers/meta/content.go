package meta

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-social-sync/core"
)

const (
	mediaFields = "id,caption,media_type,media_url,permalink,thumbnail_url,timestamp,children{id,media_type,media_url,thumbnail_url}"
	postFields  = "id,message,full_picture,permalink_url,created_time"

	graphTimeLayout = "2006-01-02T15:04:05-0700"
)

type pagingCursors struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

type pagingPayload struct {
	Cursors  pagingCursors `json:"cursors"`
	Next     string        `json:"next"`
	Previous string        `json:"previous"`
}

// nextCursor prefers cursors.after and falls back to the after parameter of
// the next link. An empty page is the last one, and so is a page shorter than
// the requested limit when no next link is present.
func (p pagingPayload) nextCursor(count int, limit int) string {
	next := strings.TrimSpace(p.Next)
	if count == 0 || (next == "" && limit > 0 && count < limit) {
		return ""
	}
	if after := strings.TrimSpace(p.Cursors.After); after != "" {
		return after
	}
	if next == "" {
		return ""
	}
	parsed, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Query().Get("after"))
}

type mediaChildPayload struct {
	ID           string `json:"id"`
	MediaType    string `json:"media_type"`
	MediaURL     string `json:"media_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type mediaPayload struct {
	ID           string  `json:"id"`
	Caption      *string `json:"caption"`
	MediaType    string  `json:"media_type"`
	MediaURL     string  `json:"media_url"`
	Permalink    string  `json:"permalink"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Timestamp    string  `json:"timestamp"`
	Children     *struct {
		Data []mediaChildPayload `json:"data"`
	} `json:"children"`
}

type mediaListPayload struct {
	Data   []mediaPayload `json:"data"`
	Paging pagingPayload  `json:"paging"`
}

func (p *mediaListPayload) recognized() bool {
	return p.Data != nil
}

type postPayload struct {
	ID           string  `json:"id"`
	Message      *string `json:"message"`
	FullPicture  string  `json:"full_picture"`
	PermalinkURL string  `json:"permalink_url"`
	CreatedTime  string  `json:"created_time"`
}

type postListPayload struct {
	Data   []postPayload `json:"data"`
	Paging pagingPayload `json:"paging"`
}

func (p *postListPayload) recognized() bool {
	return p.Data != nil
}

// ListContent fetches one page of media or posts for a source. Items keep
// whatever the provider returned; an item without an id is passed through so
// the caller can count it as a failure.
func (c *Client) ListContent(ctx context.Context, req core.ContentListRequest) (core.ContentPage, error) {
	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		return core.ContentPage{}, core.NewFieldValidationError("source_id", "source id is required")
	}
	if !req.Kind.Valid() {
		return core.ContentPage{}, core.NewFieldValidationError("kind", "unsupported content kind")
	}

	query := url.Values{}
	query.Set("access_token", req.AccessToken)
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}
	if after := strings.TrimSpace(req.After); after != "" {
		query.Set("after", after)
	}

	switch req.Kind {
	case core.ContentKindMedia:
		return c.listMedia(ctx, req, sourceID, query)
	default:
		return c.listPosts(ctx, req, sourceID, query)
	}
}

func (c *Client) listMedia(ctx context.Context, req core.ContentListRequest, sourceID string, query url.Values) (core.ContentPage, error) {
	query.Set("fields", mediaFields)
	var payload mediaListPayload
	if err := c.do(ctx, graphRequest{
		operation:     "list_media",
		path:          url.PathEscape(sourceID) + "/media",
		query:         query,
		rateScope:     req.TenantID,
		rateScopeType: "tenant",
	}, &payload); err != nil {
		return core.ContentPage{}, err
	}

	items := make([]core.ContentItem, 0, len(payload.Data))
	for _, media := range payload.Data {
		item := core.ContentItem{
			ExternalID:   strings.TrimSpace(media.ID),
			TenantID:     req.TenantID,
			SourceID:     sourceID,
			Kind:         core.ContentKindMedia,
			MediaType:    strings.ToUpper(strings.TrimSpace(media.MediaType)),
			Caption:      media.Caption,
			MediaURL:     media.MediaURL,
			ThumbnailURL: media.ThumbnailURL,
			Permalink:    media.Permalink,
			PublishedAt:  parseGraphTime(media.Timestamp),
		}
		if media.Children != nil {
			for _, child := range media.Children.Data {
				item.Children = append(item.Children, core.ChildMedia{
					ID:           child.ID,
					MediaType:    strings.ToUpper(strings.TrimSpace(child.MediaType)),
					MediaURL:     child.MediaURL,
					ThumbnailURL: child.ThumbnailURL,
				})
			}
		}
		items = append(items, item)
	}
	next := payload.Paging.nextCursor(len(payload.Data), req.Limit)
	return core.ContentPage{Items: items, NextCursor: next, HasMore: next != ""}, nil
}

func (c *Client) listPosts(ctx context.Context, req core.ContentListRequest, sourceID string, query url.Values) (core.ContentPage, error) {
	query.Set("fields", postFields)
	var payload postListPayload
	if err := c.do(ctx, graphRequest{
		operation:     "list_posts",
		path:          url.PathEscape(sourceID) + "/posts",
		query:         query,
		rateScope:     req.TenantID,
		rateScopeType: "tenant",
	}, &payload); err != nil {
		return core.ContentPage{}, err
	}

	items := make([]core.ContentItem, 0, len(payload.Data))
	for _, post := range payload.Data {
		mediaType := "STATUS"
		if strings.TrimSpace(post.FullPicture) != "" {
			mediaType = "IMAGE"
		}
		items = append(items, core.ContentItem{
			ExternalID:  strings.TrimSpace(post.ID),
			TenantID:    req.TenantID,
			SourceID:    sourceID,
			Kind:        core.ContentKindPost,
			MediaType:   mediaType,
			Caption:     post.Message,
			MediaURL:    post.FullPicture,
			Permalink:   post.PermalinkURL,
			PublishedAt: parseGraphTime(post.CreatedTime),
		})
	}
	next := payload.Paging.nextCursor(len(payload.Data), req.Limit)
	return core.ContentPage{Items: items, NextCursor: next, HasMore: next != ""}, nil
}

// parseGraphTime returns the zero time for blank or unparseable values.
func parseGraphTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{graphTimeLayout, time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
