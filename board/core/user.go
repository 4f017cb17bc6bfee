// ABOUTME: User identity and the directory that resolves the current actor.
// ABOUTME: Activity entries capture the user snapshot at command time.
package core

import (
	"context"
	"errors"
)

// ErrNoCurrentUser indicates the directory could not resolve an actor.
var ErrNoCurrentUser = errors.New("no current user")

// User is a member reference: id, display name, and avatar reference.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarRef string `json:"avatarRef,omitempty"`
}

// UserDirectory returns the identity of whoever is acting right now.
type UserDirectory interface {
	CurrentUser(ctx context.Context) (User, error)
}

// StaticDirectory always returns the same user. Useful for CLIs and tests.
type StaticDirectory struct {
	User User
}

// CurrentUser implements UserDirectory.
func (d StaticDirectory) CurrentUser(_ context.Context) (User, error) {
	if d.User.ID == "" {
		return User{}, ErrNoCurrentUser
	}
	return d.User, nil
}
