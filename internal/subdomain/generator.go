package subdomain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/atelierhq/atelier/internal/domain"
)

// maxRetries bounds candidate generation per call: one initial attempt plus
// ten retries on collision.
const maxRetries = 10

var (
	// ErrExhausted indicates every generated candidate collided with an
	// existing route on the domain.
	ErrExhausted = errors.New("subdomain: generation exhausted")
	// ErrInvalidLabel indicates a user-supplied subdomain violates DNS label rules.
	ErrInvalidLabel = errors.New("subdomain: invalid label")

	errCollision = errors.New("subdomain: candidate collision")

	labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

var adjectives = []string{
	"amber", "bold", "brisk", "calm", "civic", "clear", "crisp", "eager",
	"fresh", "gentle", "keen", "lively", "lunar", "mellow", "noble", "polar",
	"quiet", "rapid", "solid", "sunny", "swift", "tidal", "vivid", "warm",
}

var nouns = []string{
	"aspen", "basin", "cedar", "cliff", "coral", "delta", "dune", "fjord",
	"glade", "grove", "harbor", "heron", "lagoon", "maple", "mesa", "otter",
	"pier", "quarry", "reef", "ridge", "shore", "summit", "tarn", "willow",
}

// RouteLister exposes the per-domain route index used for uniqueness checks.
type RouteLister interface {
	ListRoutesByDomain(ctx context.Context, domainID string) ([]domain.Route, error)
}

// Generator produces unique, human-readable subdomains per domain.
type Generator struct {
	routes RouteLister

	// newCandidate is swappable in tests to force collisions.
	newCandidate func() string
}

// NewGenerator constructs a Generator backed by the given route index.
func NewGenerator(routes RouteLister) *Generator {
	return &Generator{routes: routes, newCandidate: candidate}
}

// Generate returns a subdomain unique among the domain's existing routes.
// It retries on collision and fails with ErrExhausted once attempts run out.
func (g *Generator) Generate(ctx context.Context, domainID string) (string, error) {
	var result string
	backoff := retry.WithMaxRetries(maxRetries, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		label := g.newCandidate()
		taken, err := g.taken(ctx, domainID, label)
		if err != nil {
			return err
		}
		if taken {
			return retry.RetryableError(errCollision)
		}
		result = label
		return nil
	})
	if err != nil {
		if errors.Is(err, errCollision) {
			return "", ErrExhausted
		}
		return "", fmt.Errorf("generate subdomain: %w", err)
	}
	return result, nil
}

func (g *Generator) taken(ctx context.Context, domainID, label string) (bool, error) {
	routes, err := g.routes.ListRoutesByDomain(ctx, domainID)
	if err != nil {
		return false, fmt.Errorf("list routes for domain %s: %w", domainID, err)
	}
	for _, route := range routes {
		if route.Subdomain == label {
			return true, nil
		}
	}
	return false, nil
}

// Validate enforces DNS label rules on a user-supplied subdomain: lowercase
// alphanumeric plus hyphen, 1-63 characters, no leading or trailing hyphen.
func Validate(label string) error {
	if len(label) == 0 || len(label) > 63 {
		return fmt.Errorf("%w: must be 1-63 characters", ErrInvalidLabel)
	}
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

// candidate composes a short word pair with a two-digit suffix.
func candidate() string {
	adj := adjectives[rand.IntN(len(adjectives))]
	noun := nouns[rand.IntN(len(nouns))]
	return fmt.Sprintf("%s-%s-%02d", adj, noun, rand.IntN(100))
}
