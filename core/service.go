package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	vault           *CredentialVault
	states          OAuthStateStore
	accounts        ExternalAccountStore
	content         ContentItemStore
	exchanger       TokenExchanger
	lister          ContentLister
	locker          TenantLocker
	refreshGroup    singleflight.Group
	now             func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("socialsync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("socialsync"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = serviceErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if provider := builder.storeProvider; provider != nil {
		if builder.credentialStore == nil {
			builder.credentialStore = provider.CredentialSetStore()
		}
		if builder.stateStore == nil {
			builder.stateStore = provider.OAuthStateStore()
		}
		if builder.accountStore == nil {
			builder.accountStore = provider.ExternalAccountStore()
		}
		if builder.contentStore == nil {
			builder.contentStore = provider.ContentItemStore()
		}
	}
	if builder.stateStore == nil {
		memory := NewMemoryOAuthStateStore(finalConfig.OAuth.StateTTL)
		memory.nowFn = builder.now
		builder.stateStore = memory
	}
	if builder.contentLister == nil {
		if lister, ok := builder.exchanger.(ContentLister); ok {
			builder.contentLister = lister
		}
	}

	switch {
	case builder.accountStore == nil:
		return nil, NewConfigurationError("service requires an external account store")
	case builder.contentStore == nil:
		return nil, NewConfigurationError("service requires a content item store")
	case builder.exchanger == nil:
		return nil, NewConfigurationError("service requires a token exchanger")
	case builder.contentLister == nil:
		return nil, NewConfigurationError("service requires a content lister")
	}
	vault, err := NewCredentialVault(builder.cipher, builder.credentialStore, builder.now)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		vault:           vault,
		states:          builder.stateStore,
		accounts:        builder.accountStore,
		content:         builder.contentStore,
		exchanger:       builder.exchanger,
		lister:          builder.contentLister,
		locker:          builder.tenantLocker,
		now:             builder.now,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Vault() *CredentialVault {
	if s == nil {
		return nil
	}
	return s.vault
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return fmt.Errorf("core: build service: %w", err)
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}
