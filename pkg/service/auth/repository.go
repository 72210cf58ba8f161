package auth

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nimburion/eventsvc/pkg/repository/document"
)

// UserRepository adds user finders to the generic engine.
type UserRepository struct {
	*document.Repository[User, *User]
}

func NewUserRepository(cfg document.Config) (*UserRepository, error) {
	repo, err := document.New[User](UserShape, cfg)
	if err != nil {
		return nil, err
	}
	return &UserRepository{Repository: repo}, nil
}

// FindByUsernameOrEmail returns the user whose username or email equals
// login, or nil.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, login string) (*User, error) {
	return r.GetOne(ctx, document.FindOptions{
		Where: document.AnyOf(
			document.Eq("username", login),
			document.Eq("email", login),
		),
	})
}

// GetByID returns the user with the given hex id, or nil. Malformed ids
// match nothing.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return r.GetUnique(ctx, document.Eq(document.IDField, oid), false)
}
