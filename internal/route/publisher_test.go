package route

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/atelierhq/atelier/internal/domain"
	"github.com/atelierhq/atelier/internal/repository"
)

type fakeRouteRepo struct {
	created   []domain.Route
	deleteErr error
	deleted   []string
}

func (f *fakeRouteRepo) CreateRoute(_ context.Context, route *domain.Route) error {
	f.created = append(f.created, *route)
	return nil
}

func (f *fakeRouteRepo) GetRouteByResource(context.Context, string) (*domain.Route, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeRouteRepo) DeleteRouteByResource(_ context.Context, resourceID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, resourceID)
	return nil
}

func (f *fakeRouteRepo) ListRoutesByDomain(context.Context, string) ([]domain.Route, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestLabelsForSubdomainRoute(t *testing.T) {
	pub := NewPublisher(&fakeRouteRepo{}, "websecure", "letsencrypt", discardLogger())

	resourceID := "0b7c9a42-1111-2222-3333-444455556666"
	labels, err := pub.Labels(resourceID, Spec{
		Subdomain:  "swift-reef-07",
		Domain:     domain.Domain{ID: "dom-1", Hostname: "atelier.dev"},
		TargetPort: 8080,
	})
	if err != nil {
		t.Fatalf("Labels returned error: %v", err)
	}

	if labels["traefik.enable"] != "true" {
		t.Fatalf("expected enable label, got %v", labels)
	}
	name := "atelier-0b7c9a421111"
	checks := map[string]string{
		fmt.Sprintf("traefik.http.routers.%s.rule", name):                      "Host(`swift-reef-07.atelier.dev`)",
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", name):               "websecure",
		fmt.Sprintf("traefik.http.routers.%s.tls.certresolver", name):          "letsencrypt",
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", name): "8080",
	}
	for key, want := range checks {
		if got := labels[key]; got != want {
			t.Errorf("label %s = %q, want %q", key, got, want)
		}
	}
}

func TestLabelsPreferCustomHost(t *testing.T) {
	pub := NewPublisher(&fakeRouteRepo{}, "websecure", "letsencrypt", discardLogger())

	labels, err := pub.Labels("res-1", Spec{
		Subdomain:  "ignored",
		CustomHost: "app.example.com",
		Domain:     domain.Domain{Hostname: "atelier.dev"},
		TargetPort: 3000,
	})
	if err != nil {
		t.Fatalf("Labels returned error: %v", err)
	}
	rule := labels["traefik.http.routers.atelier-res1.rule"]
	if rule != "Host(`app.example.com`)" {
		t.Fatalf("expected custom host rule, got %q", rule)
	}
}

func TestLabelsRejectIncompleteSpecs(t *testing.T) {
	pub := NewPublisher(&fakeRouteRepo{}, "websecure", "letsencrypt", discardLogger())

	if _, err := pub.Labels("res-1", Spec{TargetPort: 8080}); err == nil {
		t.Fatal("expected error for spec without host")
	}
	if _, err := pub.Labels("res-1", Spec{Subdomain: "app", Domain: domain.Domain{Hostname: "atelier.dev"}}); err == nil {
		t.Fatal("expected error for spec without target port")
	}
}

func TestPublishPersistsRoute(t *testing.T) {
	repo := &fakeRouteRepo{}
	pub := NewPublisher(repo, "websecure", "letsencrypt", discardLogger())

	_, err := pub.Publish(context.Background(), "res-1", Spec{
		Subdomain:  "app",
		Domain:     domain.Domain{ID: "dom-1", Hostname: "atelier.dev"},
		TargetPort: 8080,
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one route record, got %d", len(repo.created))
	}
	record := repo.created[0]
	if record.ResourceID != "res-1" || record.DomainID != "dom-1" || record.Subdomain != "app" || record.TargetPort != 8080 {
		t.Fatalf("unexpected route record: %+v", record)
	}
	if record.ID == "" {
		t.Fatal("expected route record to carry an id")
	}
}

func TestUnpublishIgnoresMissingRoute(t *testing.T) {
	repo := &fakeRouteRepo{deleteErr: repository.ErrNotFound}
	pub := NewPublisher(repo, "websecure", "letsencrypt", discardLogger())

	if err := pub.Unpublish(context.Background(), "res-1"); err != nil {
		t.Fatalf("Unpublish returned error: %v", err)
	}
}

func TestUnpublishPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	repo := &fakeRouteRepo{deleteErr: boom}
	pub := NewPublisher(repo, "websecure", "letsencrypt", discardLogger())

	if err := pub.Unpublish(context.Background(), "res-1"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
