package token

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ---- Public types ----

// TicketClaims is the signed payload carried by the session cookie.
// It only names the server-side session; no session data leaves the server.
type TicketClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

type Keyring struct {
	Alg        string
	Keys       map[string][]byte // kid -> secret
	CurrentKID string
	Issuer     string
	SkewSec    int
	// MaxTTL caps Sign() so a stolen cookie cannot outlive the policy window.
	MaxTTL time.Duration
}

// ---- Errors ----

var (
	ErrEmptyToken     = errors.New("empty token")
	ErrMissingKID     = errors.New("missing kid")
	ErrUnknownKID     = errors.New("unknown kid")
	ErrIssuerMismatch = errors.New("issuer mismatch")
	ErrTTLTooLarge    = errors.New("token lifetime exceeds max")
	ErrExpMissing     = errors.New("exp missing")
	ErrNbfInFuture    = errors.New("nbf in the future")
	ErrMissingSID     = errors.New("missing sid")
)

// ---- Constructors ----

// NewKeyring loads base64url secrets and prepares a signing/verification keyring.
// Only HMAC algorithms are accepted.
func NewKeyring(alg string, keys map[string]string, current, iss string, skew int) (*Keyring, error) {
	switch alg {
	case "HS256", "HS384", "HS512":
	default:
		return nil, errors.New("unsupported alg (expected HS256/384/512)")
	}
	kr := &Keyring{
		Alg:     alg,
		Keys:    make(map[string][]byte, len(keys)),
		Issuer:  iss,
		SkewSec: skew,
		MaxTTL:  24 * time.Hour,
	}
	for kid, b64 := range keys {
		dec, err := base64.RawURLEncoding.DecodeString(b64)
		if err != nil {
			return nil, err
		}
		if len(dec) < 16 {
			return nil, errors.New("signing key too short; need >=16 bytes")
		}
		kr.Keys[kid] = dec
	}
	if _, ok := kr.Keys[current]; !ok {
		return nil, errors.New("current_kid not found in keys")
	}
	kr.CurrentKID = current
	if kr.Issuer == "" {
		kr.Issuer = "hmcts-frontend"
	}
	return kr, nil
}

// CurrentKey returns the raw secret for the current kid.
func (k *Keyring) CurrentKey() []byte {
	return k.Keys[k.CurrentKID]
}

// ---- Operations ----

// Sign mints a session ticket for sid with bounded TTL.
// If ttl > MaxTTL, it is clamped to MaxTTL.
func (k *Keyring) Sign(sid string, ttl time.Duration) (string, error) {
	if sid == "" {
		return "", ErrMissingSID
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if ttl > k.MaxTTL {
		ttl = k.MaxTTL
	}
	now := time.Now()
	claims := TicketClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    k.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.GetSigningMethod(k.Alg), claims)
	t.Header["kid"] = k.CurrentKID
	secret := k.Keys[k.CurrentKID]
	if len(secret) == 0 {
		return "", errors.New("missing signing key for current_kid")
	}
	return t.SignedString(secret)
}

// Verify checks signature, issuer and time-based claims and returns the session id.
func (k *Keyring) Verify(tok string) (*TicketClaims, error) {
	if tok == "" {
		return nil, ErrEmptyToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{k.Alg}),
		jwt.WithStrictDecoding(),
		jwt.WithLeeway(time.Duration(k.SkewSec)*time.Second),
	)
	var claims TicketClaims

	token, err := parser.ParseWithClaims(tok, &claims, func(t *jwt.Token) (interface{}, error) {
		kidVal, ok := t.Header["kid"]
		if !ok {
			return nil, ErrMissingKID
		}
		kid, _ := kidVal.(string)
		secret, ok := k.Keys[kid]
		if !ok {
			return nil, ErrUnknownKID
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	if subtle.ConstantTimeCompare([]byte(claims.Issuer), []byte(k.Issuer)) != 1 {
		return nil, ErrIssuerMismatch
	}

	now := time.Now()
	skew := time.Duration(k.SkewSec) * time.Second
	if claims.NotBefore != nil && now.Add(skew).Before(claims.NotBefore.Time) {
		return nil, ErrNbfInFuture
	}
	if claims.ExpiresAt == nil {
		return nil, ErrExpMissing
	}
	if claims.IssuedAt != nil {
		lifetime := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
		if lifetime > k.MaxTTL+skew {
			return nil, ErrTTLTooLarge
		}
	}
	if claims.SID == "" {
		return nil, ErrMissingSID
	}
	return &claims, nil
}
