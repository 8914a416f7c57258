package kit

import "context"

// Scope is the set of projects the caller may read and write. Identity is
// resolved upstream; the scope only carries its outcome.
type Scope struct {
	all bool
	ids map[string]struct{}
}

// WithProjectScope restricts ctx to the given project ids. Calling it with
// no ids yields a scope that allows no existing project.
func WithProjectScope(ctx context.Context, ids ...string) context.Context {
	s := &Scope{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return context.WithValue(ctx, ScopeKey, s)
}

// WithUnrestrictedScope allows every project.
func WithUnrestrictedScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, ScopeKey, &Scope{all: true})
}

// GetScope returns the scope of ctx, or nil when none was installed.
func GetScope(ctx context.Context) *Scope {
	s, _ := ctx.Value(ScopeKey).(*Scope)
	return s
}

// Allows reports whether the scope covers projectID. A nil scope allows nothing.
func (s *Scope) Allows(projectID string) bool {
	if s == nil {
		return false
	}
	if s.all {
		return true
	}
	_, ok := s.ids[projectID]
	return ok
}

// Unrestricted reports whether the scope covers every project.
func (s *Scope) Unrestricted() bool { return s != nil && s.all }

// Grant adds a project id to a restricted scope, so a project created
// during a request stays reachable for the rest of it.
func (s *Scope) Grant(projectID string) {
	if s == nil || s.all || projectID == "" {
		return
	}
	s.ids[projectID] = struct{}{}
}
