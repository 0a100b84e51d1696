package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	subjectClaim  = "sub"
	usernameClaim = "username"
	expClaim      = "exp"
	issuedAtClaim = "iat"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Identity is the authenticated user behind a connection or request.
type Identity struct {
	Id       string `json:"userId"`
	Username string `json:"username"`
}

// Verifier turns an opaque credential into an Identity.
type Verifier interface {
	Verify(credential string) (Identity, error)
}

type JWTAuthenticator struct {
	key []byte
	ttl time.Duration
}

func NewJWTAuthenticator(key []byte, ttl time.Duration) *JWTAuthenticator {
	return &JWTAuthenticator{key: key, ttl: ttl}
}

func (a *JWTAuthenticator) TTL() time.Duration {
	return a.ttl
}

// Issue signs an HS256 token for id that expires after the configured TTL.
func (a *JWTAuthenticator) Issue(id Identity) (string, error) {
	return a.issue(id, a.ttl)
}

func (a *JWTAuthenticator) issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subjectClaim:  id.Id,
		usernameClaim: id.Username,
		issuedAtClaim: now.Unix(),
		expClaim:      now.Add(ttl).Unix(),
	})

	return token.SignedString(a.key)
}

// Verify checks signature, algorithm and expiry. Every failure other than an
// empty credential is reported as ErrInvalidCredential.
func (a *JWTAuthenticator) Verify(credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrMissingCredential
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidCredential
	}

	if _, ok := claims[expClaim]; !ok {
		return Identity{}, fmt.Errorf("%w: missing exp claim", ErrInvalidCredential)
	}

	sub, _ := claims[subjectClaim].(string)
	username, _ := claims[usernameClaim].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	return Identity{Id: sub, Username: username}, nil
}

func HashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func VerifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
