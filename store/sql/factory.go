package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-social-sync/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	credentialSetStore   *CredentialSetStore
	oauthStateStore      *OAuthStateStore
	externalAccountStore *ExternalAccountStore
	contentItemStore     *ContentItemStore
	rateLimitStateStore  *RateLimitStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB.
func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.credentialSetStore != nil && f.externalAccountStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) CredentialSetStore() core.CredentialSetStore {
	if f == nil {
		return nil
	}
	return f.credentialSetStore
}

func (f *RepositoryFactory) OAuthStateStore() core.OAuthStateStore {
	if f == nil {
		return nil
	}
	return f.oauthStateStore
}

func (f *RepositoryFactory) ExternalAccountStore() core.ExternalAccountStore {
	if f == nil {
		return nil
	}
	return f.externalAccountStore
}

func (f *RepositoryFactory) ContentItemStore() core.ContentItemStore {
	if f == nil {
		return nil
	}
	return f.contentItemStore
}

func (f *RepositoryFactory) RateLimitStateStore() *RateLimitStateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

// OAuthStates exposes the concrete state store for expiry purges.
func (f *RepositoryFactory) OAuthStates() *OAuthStateStore {
	if f == nil {
		return nil
	}
	return f.oauthStateStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialSetStore, err := NewCredentialSetStore(f.db)
	if err != nil {
		return err
	}
	f.credentialSetStore = credentialSetStore

	oauthStateStore, err := NewOAuthStateStore(f.db)
	if err != nil {
		return err
	}
	f.oauthStateStore = oauthStateStore

	externalAccountStore, err := NewExternalAccountStore(f.db)
	if err != nil {
		return err
	}
	f.externalAccountStore = externalAccountStore

	contentItemStore, err := NewContentItemStore(f.db)
	if err != nil {
		return err
	}
	f.contentItemStore = contentItemStore

	rateLimitStateStore, err := NewRateLimitStateStore(f.db)
	if err != nil {
		return err
	}
	f.rateLimitStateStore = rateLimitStateStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
