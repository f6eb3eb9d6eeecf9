package subdomain

import (
	"context"
	"errors"
	"testing"

	"github.com/atelierhq/atelier/internal/domain"
)

type fakeRouteLister struct {
	routes map[string][]domain.Route
	err    error
	calls  int
}

func (f *fakeRouteLister) ListRoutesByDomain(_ context.Context, domainID string) ([]domain.Route, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.routes[domainID], nil
}

func TestGenerateAvoidsExistingSubdomains(t *testing.T) {
	lister := &fakeRouteLister{routes: map[string][]domain.Route{
		"dom-1": {
			{DomainID: "dom-1", Subdomain: "api"},
			{DomainID: "dom-1", Subdomain: "app"},
		},
	}}
	gen := NewGenerator(lister)

	for i := 0; i < 50; i++ {
		label, err := gen.Generate(context.Background(), "dom-1")
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if label == "api" || label == "app" {
			t.Fatalf("Generate returned an existing subdomain %q", label)
		}
		if err := Validate(label); err != nil {
			t.Fatalf("generated subdomain %q fails validation: %v", label, err)
		}
	}
}

func TestGenerateExhaustsAfterElevenCollisions(t *testing.T) {
	lister := &fakeRouteLister{routes: map[string][]domain.Route{
		"dom-1": {{DomainID: "dom-1", Subdomain: "taken"}},
	}}
	gen := NewGenerator(lister)
	gen.newCandidate = func() string { return "taken" }

	_, err := gen.Generate(context.Background(), "dom-1")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if lister.calls != 11 {
		t.Fatalf("expected 11 uniqueness checks, got %d", lister.calls)
	}
}

func TestGeneratePropagatesListerErrors(t *testing.T) {
	boom := errors.New("db down")
	gen := NewGenerator(&fakeRouteLister{err: boom})

	_, err := gen.Generate(context.Background(), "dom-1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected lister error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := []string{"a", "app", "my-app", "a1", "swift-reef-07"}
	for _, label := range valid {
		if err := Validate(label); err != nil {
			t.Errorf("Validate(%q) returned error: %v", label, err)
		}
	}

	invalid := []string{
		"",
		"-app",
		"app-",
		"My-App",
		"app_1",
		"app.web",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	for _, label := range invalid {
		if err := Validate(label); !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidLabel", label, err)
		}
	}
}
