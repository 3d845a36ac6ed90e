// Package gocommand registers the connector commands and queries with a
// go-command registry and the process wide dispatcher.
package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	socialcommand "github.com/goliatone/go-social-sync/command"
	"github.com/goliatone/go-social-sync/core"
	socialquery "github.com/goliatone/go-social-sync/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered command into a go-job queue
// registry so commands can also run from queued jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// SubscribeQuery only subscribes; go-command registries hold commands.
func SubscribeQuery[T any, R any](
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...), nil
}

// Subscriptions tracks every dispatcher subscription of one connector.
type Subscriptions struct {
	items []commanddispatcher.Subscription
}

func (s *Subscriptions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *Subscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, item := range s.items {
		if item != nil {
			item.Unsubscribe()
		}
	}
	s.items = nil
}

func (s *Subscriptions) add(subscription commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	s.items = append(s.items, subscription)
	return nil
}

// SubscribeConnector registers every connector command and subscribes every
// command and query to the dispatcher. On failure nothing stays subscribed.
func SubscribeConnector(
	adapter *RegistryAdapter,
	service core.ConnectorService,
	runnerOpts ...runner.Option,
) (*Subscriptions, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: connector service is required")
	}
	subs := &Subscriptions{}
	errs := []error{
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewStoreCredentialsCommand(service), runnerOpts...)),
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewUpdateCredentialSetCommand(service), runnerOpts...)),
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewDeleteCredentialSetCommand(service), runnerOpts...)),
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewBeginAuthCommand(service), runnerOpts...)),
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewCompleteAuthCommand(service), runnerOpts...)),
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewDisconnectCommand(service), runnerOpts...)),
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewTriggerSyncCommand(service), runnerOpts...)),
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewBackfillCommand(service), runnerOpts...)),
		subs.add(RegisterAndSubscribe(adapter, socialcommand.NewRefreshTokenCommand(service), runnerOpts...)),
		subs.add(SubscribeQuery(socialquery.NewGetActiveCredentialsQuery(service), runnerOpts...)),
		subs.add(SubscribeQuery(socialquery.NewListCredentialSetsQuery(service), runnerOpts...)),
		subs.add(SubscribeQuery(socialquery.NewGetExternalAccountQuery(service), runnerOpts...)),
		subs.add(SubscribeQuery(socialquery.NewListContentQuery(service), runnerOpts...)),
	}
	if err := errors.Join(errs...); err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	return subs, nil
}
