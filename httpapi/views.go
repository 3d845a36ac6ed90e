package httpapi

import (
	"time"

	"github.com/goliatone/go-social-sync/core"
)

type storeCredentialsBody struct {
	AppID       string `json:"app_id"`
	AppSecret   string `json:"app_secret"`
	RedirectURI string `json:"redirect_uri"`
	DisplayName string `json:"display_name"`
}

type storedCredentialsView struct {
	ID string `json:"id"`
}

// credentialView never carries the app secret.
type credentialView struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	AppID       string    `json:"app_id"`
	RedirectURI string    `json:"redirect_uri"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newCredentialView(set core.CredentialSet) credentialView {
	return credentialView{
		ID:          set.ID,
		TenantID:    set.TenantID,
		AppID:       set.AppID,
		RedirectURI: set.RedirectURI,
		DisplayName: set.DisplayName,
		Active:      set.Active,
		CreatedAt:   set.CreatedAt,
		UpdatedAt:   set.UpdatedAt,
	}
}

type subAccountView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// accountView never carries access tokens.
type accountView struct {
	TenantID           string           `json:"tenant_id"`
	ExternalUserID     string           `json:"external_user_id"`
	DisplayName        string           `json:"display_name"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty"`
	SubAccounts        []subAccountView `json:"sub_accounts"`
	SecondaryAccountID string           `json:"secondary_account_id,omitempty"`
	GrantedScopes      []string         `json:"granted_scopes,omitempty"`
}

func newAccountView(account core.ExternalAccount) accountView {
	view := accountView{
		TenantID:           account.TenantID,
		ExternalUserID:     account.ExternalUserID,
		DisplayName:        account.DisplayName,
		ExpiresAt:          account.ExpiresAt,
		SubAccounts:        make([]subAccountView, 0, len(account.SubAccounts)),
		SecondaryAccountID: account.SecondaryAccountID,
		GrantedScopes:      account.GrantedScopes,
	}
	for _, sub := range account.SubAccounts {
		view.SubAccounts = append(view.SubAccounts, subAccountView{ID: sub.ID, Name: sub.Name})
	}
	return view
}

type syncView struct {
	StoredCount int  `json:"stored_count"`
	HasMore     bool `json:"has_more"`
}
