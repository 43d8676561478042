package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// UserID is a UUID-based identifier for User
type UserID string

// NewUserID generates a new UUID v4 UserID
func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func (id UserID) String() string {
	return string(id)
}

// PrincipalID is the identity provider's subject for an authenticated caller
type PrincipalID string

func (id PrincipalID) String() string {
	return string(id)
}

// SessionToken is an opaque bearer value stored in the session cookie.
// Values of this type are redacted from logs.
type SessionToken string

// sessionTokenBytes is the entropy of a session token (256 bits)
const sessionTokenBytes = 32

// NewSessionToken mints an unguessable session token from crypto/rand
func NewSessionToken() (SessionToken, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerr.Wrap(err, "failed to generate session token")
	}
	return SessionToken(hex.EncodeToString(buf)), nil
}

func (t SessionToken) String() string {
	return string(t)
}

// User is the durable identity that owns stories.
// PrincipalID is empty while the user is anonymous.
type User struct {
	ID           UserID
	PrincipalID  PrincipalID
	DisplayName  string
	SessionToken SessionToken
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAnonymous reports whether the user has not been linked to a principal yet
func (u *User) IsAnonymous() bool {
	return u.PrincipalID == ""
}

// Copy returns a copy of the user
func (u *User) Copy() *User {
	copied := *u
	return &copied
}
