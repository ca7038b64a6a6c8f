package eventlog

// Scope limits site lookups to the sites a caller may access.
//
// The zero Scope allows every site. Elevated also allows every site, but
// marks a deliberate bypass of the caller's restrictions so that it stays
// visible at the call site.
type Scope struct {
	elevated bool
	sites    map[string]struct{}
}

// Elevated returns a scope that ignores the caller's site restrictions.
func Elevated() Scope {
	return Scope{elevated: true}
}

// AllSites returns an unrestricted, non-elevated scope.
func AllSites() Scope {
	return Scope{}
}

// SitesOnly restricts the scope to the given site identifiers. With no
// identifiers, nothing is accessible.
func SitesOnly(identifiers ...string) Scope {
	s := Scope{sites: make(map[string]struct{}, len(identifiers))}
	for _, id := range identifiers {
		s.sites[id] = struct{}{}
	}
	return s
}

func (s Scope) IsElevated() bool {
	return s.elevated
}

// Restricted reports whether only some sites are accessible.
func (s Scope) Restricted() bool {
	return !s.elevated && s.sites != nil
}

func (s Scope) Allows(site string) bool {
	if !s.Restricted() {
		return true
	}
	_, ok := s.sites[site]
	return ok
}

// Filter returns the sites allowed by the scope, keeping their order.
func (s Scope) Filter(sites []Site) []Site {
	if !s.Restricted() {
		return sites
	}
	var res []Site
	for i := range sites {
		if s.Allows(sites[i].Identifier) {
			res = append(res, sites[i])
		}
	}
	return res
}
