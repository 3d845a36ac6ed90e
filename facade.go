package socialsync

import (
	"fmt"

	socialcommand "github.com/goliatone/go-social-sync/command"
	"github.com/goliatone/go-social-sync/core"
	socialquery "github.com/goliatone/go-social-sync/query"
)

type Commands struct {
	StoreCredentials    *socialcommand.StoreCredentialsCommand
	UpdateCredentialSet *socialcommand.UpdateCredentialSetCommand
	DeleteCredentialSet *socialcommand.DeleteCredentialSetCommand
	BeginAuth           *socialcommand.BeginAuthCommand
	CompleteAuth        *socialcommand.CompleteAuthCommand
	Disconnect          *socialcommand.DisconnectCommand
	TriggerSync         *socialcommand.TriggerSyncCommand
	Backfill            *socialcommand.BackfillCommand
	RefreshToken        *socialcommand.RefreshTokenCommand
}

type Queries struct {
	GetActiveCredentials *socialquery.GetActiveCredentialsQuery
	ListCredentialSets   *socialquery.ListCredentialSetsQuery
	GetExternalAccount   *socialquery.GetExternalAccountQuery
	ListContent          *socialquery.ListContentQuery
}

// Facade groups the command and query handlers built over one connector.
type Facade struct {
	service  core.ConnectorService
	commands Commands
	queries  Queries
}

func NewFacade(service core.ConnectorService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("socialsync: connector service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		StoreCredentials:    socialcommand.NewStoreCredentialsCommand(service),
		UpdateCredentialSet: socialcommand.NewUpdateCredentialSetCommand(service),
		DeleteCredentialSet: socialcommand.NewDeleteCredentialSetCommand(service),
		BeginAuth:           socialcommand.NewBeginAuthCommand(service),
		CompleteAuth:        socialcommand.NewCompleteAuthCommand(service),
		Disconnect:          socialcommand.NewDisconnectCommand(service),
		TriggerSync:         socialcommand.NewTriggerSyncCommand(service),
		Backfill:            socialcommand.NewBackfillCommand(service),
		RefreshToken:        socialcommand.NewRefreshTokenCommand(service),
	}
	facade.queries = Queries{
		GetActiveCredentials: socialquery.NewGetActiveCredentialsQuery(service),
		ListCredentialSets:   socialquery.NewListCredentialSetsQuery(service),
		GetExternalAccount:   socialquery.NewGetExternalAccountQuery(service),
		ListContent:          socialquery.NewListContentQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() core.ConnectorService {
	if f == nil {
		return nil
	}
	return f.service
}
