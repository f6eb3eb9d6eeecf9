package netport

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atelierhq/atelier/internal/domain"
)

// ErrExhausted indicates every port in the configured range is leased or bound.
var ErrExhausted = errors.New("netport: port range exhausted")

// Allocator hands out unique host ports from an inclusive range. All resource
// types share one numeric space, so the decide-and-record step is serialized
// behind a single mutex.
type Allocator struct {
	mu     sync.Mutex
	min    int
	max    int
	leases map[int]string

	// probe reports whether a port is already bound on the host. It guards
	// against drift between the ledger and actual OS state.
	probe func(port int) bool

	gauge prometheus.Gauge
}

// New constructs an Allocator over the inclusive range [min, max].
func New(min, max int) (*Allocator, error) {
	if min <= 0 || max < min {
		return nil, fmt.Errorf("netport: invalid range [%d, %d]", min, max)
	}
	a := &Allocator{
		min:    min,
		max:    max,
		leases: make(map[int]string),
		probe:  hostPortBound,
		gauge:  leaseGauge(),
	}
	return a, nil
}

// Allocate returns the lowest free port in the range and records the lease.
func (a *Allocator) Allocate(resourceID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port := a.min; port <= a.max; port++ {
		if _, leased := a.leases[port]; leased {
			continue
		}
		if a.probe(port) {
			continue
		}
		a.leases[port] = resourceID
		if a.gauge != nil {
			a.gauge.Set(float64(len(a.leases)))
		}
		return port, nil
	}
	return 0, ErrExhausted
}

// Reserve records a lease on a specific port, used to rehydrate the ledger
// from persisted resource records at startup.
func (a *Allocator) Reserve(port int, resourceID string) error {
	if port < a.min || port > a.max {
		return fmt.Errorf("netport: port %d outside range [%d, %d]", port, a.min, a.max)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if owner, leased := a.leases[port]; leased && owner != resourceID {
		return fmt.Errorf("netport: port %d already leased by %s", port, owner)
	}
	a.leases[port] = resourceID
	if a.gauge != nil {
		a.gauge.Set(float64(len(a.leases)))
	}
	return nil
}

// Release removes the lease on a port. Releasing an unleased port is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.leases, port)
	if a.gauge != nil {
		a.gauge.Set(float64(len(a.leases)))
	}
}

// Leases returns a snapshot of active leases ordered by port.
func (a *Allocator) Leases() []domain.PortLease {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.PortLease, 0, len(a.leases))
	for port, owner := range a.leases {
		out = append(out, domain.PortLease{Port: port, ResourceID: owner})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// hostPortBound probes the OS by attempting to listen on the port.
func hostPortBound(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}

var (
	gaugeOnce sync.Once
	gauge     prometheus.Gauge
)

func leaseGauge() prometheus.Gauge {
	gaugeOnce.Do(func() {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "atelier",
			Subsystem: "orchestrator",
			Name:      "port_leases_active",
			Help:      "Number of host ports currently leased",
		})
		if err := prometheus.Register(g); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
					g = existing
				}
			}
		}
		gauge = g
	})
	return gauge
}
