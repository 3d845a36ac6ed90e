package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	socialcommand "github.com/goliatone/go-social-sync/command"
	"github.com/goliatone/go-social-sync/core"
	socialquery "github.com/goliatone/go-social-sync/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "socialsync.test.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "socialsync.test.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type queueMessage struct{}

func (queueMessage) Type() string { return "socialsync.test.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(socialcommand.CompleteAuthMessage{}); err == nil {
		t.Fatalf("expected connector message validation to run")
	}
}

func TestSubscribeConnectorDispatchesCommandsAndQueries(t *testing.T) {
	svc := &fakeConnector{}
	adapter := NewRegistryAdapter(command.NewRegistry())
	subs, err := SubscribeConnector(adapter, svc)
	if err != nil {
		t.Fatalf("subscribe connector: %v", err)
	}
	t.Cleanup(subs.Unsubscribe)
	if subs.Len() != 13 {
		t.Fatalf("expected 13 subscriptions, got %d", subs.Len())
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	if err := Dispatch(ctx, socialcommand.DisconnectMessage{TenantID: "tenant_1"}); err != nil {
		t.Fatalf("dispatch disconnect: %v", err)
	}
	if svc.disconnected != "tenant_1" {
		t.Fatalf("expected disconnect for tenant_1, got %q", svc.disconnected)
	}

	page, err := Query[socialquery.ListContentMessage, core.ContentPage](ctx, socialquery.ListContentMessage{
		Request: core.ListContentRequest{TenantID: "tenant_1", Limit: 5},
	})
	if err != nil {
		t.Fatalf("query content: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ExternalID != "m1" {
		t.Fatalf("unexpected content page: %#v", page)
	}
}

func TestSubscribeConnectorRequiresService(t *testing.T) {
	if _, err := SubscribeConnector(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected missing service error")
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if !adapter.HasResolver("queue") {
		t.Fatalf("expected queue resolver to be registered")
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("socialsync.test.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

type fakeConnector struct {
	core.ConnectorService
	disconnected string
}

func (f *fakeConnector) Disconnect(_ context.Context, tenantID string) error {
	f.disconnected = tenantID
	return nil
}

func (f *fakeConnector) ListContent(_ context.Context, req core.ListContentRequest) (core.ContentPage, error) {
	return core.ContentPage{Items: []core.ContentItem{{ExternalID: "m1", TenantID: req.TenantID}}}, nil
}
