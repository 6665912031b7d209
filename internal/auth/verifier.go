package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMissingCredential is returned when no bearer credential was presented.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential is returned when the credential does not verify.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrMissingSubject is returned when a token carries no user identity.
	ErrMissingSubject = errors.New("token has no subject")
	// ErrInvalidSubject is returned when a user identity contains the room separator.
	ErrInvalidSubject = errors.New("subject must not contain " + strconv.Quote(IDSeparator))
)

// IDSeparator joins two user ids into a room id, so no user id may contain it.
const IDSeparator = "_"

// ValidUserID reports whether id can be used as a user identity.
func ValidUserID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.Contains(id, IDSeparator)
}

// Identity is a verified user identity.
type Identity struct {
	UserID   string
	Username string
}

// Verifier turns a bearer credential into a user identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier verifies HS256 tokens issued with a shared secret.
type JWTVerifier struct {
	cfg *JWTConfig
}

// NewJWTVerifier creates a verifier for the given configuration.
func NewJWTVerifier(cfg *JWTConfig) *JWTVerifier {
	return &JWTVerifier{cfg: cfg}
}

// Verify validates the token and returns the identity it carries.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingCredential
	}
	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	name := claims.Username
	if name == "" {
		name = claims.Subject
	}
	return Identity{UserID: claims.Subject, Username: name}, nil
}

// Issue mints a token for the user with the verifier's configuration.
func (v *JWTVerifier) Issue(userID, username string) (string, error) {
	return GenerateToken(v.cfg, userID, username)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
