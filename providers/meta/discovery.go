package meta

import (
	"context"
	"net/url"
	"strings"

	"github.com/goliatone/go-social-sync/core"
)

type identityPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *identityPayload) recognized() bool {
	return strings.TrimSpace(p.ID) != ""
}

type accountPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type accountsPayload struct {
	Data   []accountPayload `json:"data"`
	Paging pagingPayload    `json:"paging"`
}

func (p *accountsPayload) recognized() bool {
	return p.Data != nil
}

type secondaryAccountPayload struct {
	ID                       string `json:"id"`
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

func (p *secondaryAccountPayload) recognized() bool {
	return strings.TrimSpace(p.ID) != ""
}

func (c *Client) FetchIdentity(ctx context.Context, token string) (core.Identity, error) {
	query := url.Values{}
	query.Set("fields", "id,name")
	query.Set("access_token", token)

	var payload identityPayload
	if err := c.do(ctx, graphRequest{operation: "fetch_identity", path: "me", query: query}, &payload); err != nil {
		return core.Identity{}, err
	}
	return core.Identity{ID: payload.ID, Name: payload.Name}, nil
}

// DiscoverSubAccounts lists the managed pages of the user, then looks up the
// linked business account page by page. The first page that has one wins and
// the lookups stop there; a failing lookup is skipped.
func (c *Client) DiscoverSubAccounts(ctx context.Context, token string) (core.Discovery, error) {
	subAccounts, err := c.listSubAccounts(ctx, token)
	if err != nil {
		return core.Discovery{}, err
	}

	discovery := core.Discovery{SubAccounts: subAccounts}
	for _, sub := range subAccounts {
		if ctx.Err() != nil {
			return core.Discovery{}, ctx.Err()
		}
		lookupToken := sub.AccessToken
		if strings.TrimSpace(lookupToken) == "" {
			lookupToken = token
		}
		query := url.Values{}
		query.Set("fields", "instagram_business_account")
		query.Set("access_token", lookupToken)

		var payload secondaryAccountPayload
		if err := c.do(ctx, graphRequest{
			operation: "lookup_secondary_account",
			path:      url.PathEscape(sub.ID),
			query:     query,
		}, &payload); err != nil {
			continue
		}
		if payload.InstagramBusinessAccount != nil && strings.TrimSpace(payload.InstagramBusinessAccount.ID) != "" {
			discovery.SecondaryAccountID = payload.InstagramBusinessAccount.ID
			break
		}
	}
	return discovery, nil
}

func (c *Client) listSubAccounts(ctx context.Context, token string) ([]core.SubAccount, error) {
	out := []core.SubAccount{}
	after := ""
	for page := 0; page < c.cfg.MaxAccountPages; page++ {
		query := url.Values{}
		query.Set("fields", "id,name,access_token")
		query.Set("access_token", token)
		if after != "" {
			query.Set("after", after)
		}

		var payload accountsPayload
		if err := c.do(ctx, graphRequest{operation: "list_sub_accounts", path: "me/accounts", query: query}, &payload); err != nil {
			return nil, err
		}
		for _, account := range payload.Data {
			if strings.TrimSpace(account.ID) == "" {
				continue
			}
			out = append(out, core.SubAccount{ID: account.ID, Name: account.Name, AccessToken: account.AccessToken})
		}
		next := payload.Paging.nextCursor(len(payload.Data), 0)
		if next == "" || next == after {
			break
		}
		after = next
	}
	return out, nil
}
