package domain

import "time"

// Domain is a registered hostname routes can be published under.
type Domain struct {
	ID        string
	Hostname  string
	OwnerID   string
	Verified  bool
	Default   bool
	CreatedAt time.Time
}

// Route binds a resource's listening port to an externally resolvable host.
// Exactly one of Subdomain or CustomHost is set.
type Route struct {
	ID         string
	ResourceID string
	DomainID   string
	Subdomain  string
	CustomHost string
	TargetPort int
	CreatedAt  time.Time
}

// Host returns the externally visible hostname for the route.
func (r Route) Host(domainHostname string) string {
	if r.CustomHost != "" {
		return r.CustomHost
	}
	return r.Subdomain + "." + domainHostname
}
