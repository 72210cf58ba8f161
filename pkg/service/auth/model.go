// Package auth implements user registration, login and the current-user
// lookup on top of the document repository engine.
package auth

import (
	"time"

	"github.com/nimburion/eventsvc/pkg/repository/document"
)

// UserCollection is where users are stored.
const UserCollection = "users"

// User is a registered account. Email and username are unique and stored
// lower-cased.
type User struct {
	document.Model `bson:",inline"`
	Email          string    `bson:"email" json:"email"`
	Username       string    `bson:"username" json:"username"`
	PasswordHash   string    `bson:"password_hash" json:"-"`
	FullName       *string   `bson:"full_name" json:"full_name"`
	IsVerified     bool      `bson:"is_verified" json:"is_verified"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// UserShape declares the users collection and its unique indexes.
var UserShape = document.NewShape[User](UserCollection,
	document.WithUniqueIndex("email"),
	document.WithUniqueIndex("username"),
)
