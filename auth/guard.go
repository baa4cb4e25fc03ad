package auth

// DefaultPublicPaths are reachable without signing in
var DefaultPublicPaths = []string{DefaultSignInPath}

// Guard decides whether a location may be shown. Locations outside the
// public set need a logged-in session; otherwise the user is redirected.
type Guard struct {
	authority *Authority
	public    map[string]struct{}
}

// NewGuard builds a guard over publicPaths, or DefaultPublicPaths when none
// are given. The authority's sign-in path is always public.
func NewGuard(authority *Authority, publicPaths ...string) *Guard {
	if len(publicPaths) == 0 {
		publicPaths = DefaultPublicPaths
	}
	g := &Guard{
		authority: authority,
		public:    make(map[string]struct{}, len(publicPaths)+1),
	}
	for _, p := range publicPaths {
		g.public[p] = struct{}{}
	}
	g.public[authority.SignInPath()] = struct{}{}
	return g
}

func (g *Guard) IsPublic(path string) bool {
	_, ok := g.public[path]
	return ok
}

// Check reports whether path may be displayed and redirects to sign-in when
// it may not.
func (g *Guard) Check(path string) bool {
	if g.authority.IsLoggedIn() || g.IsPublic(path) {
		return true
	}
	g.authority.Redirect()
	return false
}
