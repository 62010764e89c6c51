package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/desertthunder/scrobblex/internal/shared"
)

// User is a local reader whose activity is scrobbled with their provider credential.
type User struct {
	id                string
	sequence          int
	name              string
	credential        string
	backfillCompleted bool
	backfillAt        time.Time
	createdAt         time.Time
	updatedAt         time.Time
}

// NewUser creates a user with the given name and provider credential (which may be empty).
func NewUser(name, credential string) *User {
	now := time.Now().UTC()
	return &User{
		name:       name,
		credential: strings.TrimSpace(credential),
		createdAt:  now,
		updatedAt:  now,
	}
}

func (u *User) ID() string              { return u.id }
func (u *User) Name() string            { return u.name }
func (u *User) Credential() string      { return u.credential }
func (u *User) BackfillCompleted() bool { return u.backfillCompleted }
func (u *User) BackfillAt() time.Time   { return u.backfillAt }
func (u *User) CreatedAt() time.Time    { return u.createdAt }
func (u *User) UpdatedAt() time.Time    { return u.updatedAt }

func (u *User) SetID(id string)            { u.id = id }
func (u *User) SetCreatedAt(t time.Time)   { u.createdAt = t.UTC() }
func (u *User) SetUpdatedAt(t time.Time)   { u.updatedAt = t.UTC() }
func (u *User) SetCredential(token string) { u.credential = strings.TrimSpace(token) }
func (u *User) HasCredential() bool        { return u.credential != "" }
func (u *User) SetName(name string)        { u.name = name }

// SetBackfill marks the one-time backfill as completed at the given time.
func (u *User) SetBackfill(at time.Time) {
	u.backfillCompleted = true
	u.backfillAt = at.UTC()
}

// Token returns the provider credential as an [oauth2.Token].
//
// When the credential is a JWT its exp claim becomes the token expiry. The signature is not verified.
func (u *User) Token() *oauth2.Token {
	if u.credential == "" {
		return nil
	}

	token := &oauth2.Token{AccessToken: u.credential, TokenType: "Bearer"}
	if exp, ok := credentialExpiry(u.credential); ok {
		token.Expiry = exp
	}
	return token
}

// CredentialExpired reports whether a present credential has passed its expiry.
func (u *User) CredentialExpired() bool {
	token := u.Token()
	return token != nil && !token.Valid()
}

// Validate checks required fields.
func (u *User) Validate() error {
	if strings.TrimSpace(u.name) == "" {
		return fmt.Errorf("%w: user name is required", shared.ErrInvalidInput)
	}
	return nil
}

func credentialExpiry(credential string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
