// ABOUTME: Resolves the acting user from request headers and carries it on the request context.
// ABOUTME: ContextDirectory is the core.UserDirectory the board actor consults for each command.
package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/2389-research/kanbansync/board/core"
)

// Headers carrying the acting user's identity.
const (
	HeaderUserID     = "X-User-Id"
	HeaderUserName   = "X-User-Name"
	HeaderUserAvatar = "X-User-Avatar"
)

type userKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userKey{}).(core.User)
	return u, ok && u.ID != ""
}

// ContextDirectory reads the user from the context, falling back to
// Default when the request carried none. A zero Default makes anonymous
// commands fail with core.ErrNoCurrentUser.
type ContextDirectory struct {
	Default core.User
}

// CurrentUser implements core.UserDirectory.
func (d ContextDirectory) CurrentUser(ctx context.Context) (core.User, error) {
	if u, ok := UserFromContext(ctx); ok {
		return u, nil
	}
	if d.Default.ID != "" {
		return d.Default, nil
	}
	return core.User{}, core.ErrNoCurrentUser
}

// identify copies the identity headers onto the request context.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id != "" {
			name := strings.TrimSpace(r.Header.Get(HeaderUserName))
			if name == "" {
				name = id
			}
			u := core.User{ID: id, Name: name, AvatarRef: r.Header.Get(HeaderUserAvatar)}
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}
