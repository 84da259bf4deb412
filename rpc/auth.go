package rpc

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"jidchain/crypto"
)

// AuthConfig controls how callers are identified. Operator tokens are HS256
// signed with Secret and may name any account in "sub". Self-signed tokens
// use EdDSA with the key whose public half is the subject account.
type AuthConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	// AllowSelfSigned accepts EdDSA tokens signed by the subject account.
	AllowSelfSigned bool
	Logger          *slog.Logger
}

type contextKey string

const contextKeyCaller contextKey = "jid.caller"

// SelfSignedKeyHeader carries the hex ed25519 public key of a self-signed
// token when the subject account is a hashed account.
const SelfSignedKeyHeader = "X-JID-Public-Key"

var (
	errMissingCaller = errors.New("rpc: caller token required")
	errTokenInvalid  = errors.New("rpc: invalid token")
)

type callerInfo struct {
	account crypto.AccountID
	present bool
}

func (c callerInfo) require() (crypto.AccountID, error) {
	if !c.present {
		return crypto.AccountID{}, errMissingCaller
	}
	return c.account, nil
}

func callerFromContext(ctx context.Context) callerInfo {
	if v, ok := ctx.Value(contextKeyCaller).(callerInfo); ok {
		return v
	}
	return callerInfo{}
}

// Authenticator resolves the caller account from a bearer token. Requests
// without a token proceed anonymously and may only use read methods.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.Secret)), logger: logger}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}
		account, err := a.Authenticate(tokenString, r.Header.Get(SelfSignedKeyHeader))
		if err != nil {
			a.logger.Warn("token rejected", slog.String("error", err.Error()))
			writeError(w, http.StatusUnauthorized, nil, codeUnauthorized, "invalid token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, callerInfo{account: account, present: true})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate validates the token and returns the subject account.
func (a *Authenticator) Authenticate(tokenString, publicKeyHex string) (crypto.AccountID, error) {
	var subject crypto.AccountID
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return nil, errors.New("claims not map")
		}
		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return nil, errors.New("subject required")
		}
		subject, err = crypto.ParseAccount(sub)
		if err != nil {
			return nil, fmt.Errorf("subject: %w", err)
		}
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(a.secret) == 0 {
				return nil, errors.New("auth secret not configured")
			}
			return a.secret, nil
		case *jwt.SigningMethodEd25519:
			if !a.cfg.AllowSelfSigned {
				return nil, errors.New("self-signed tokens disabled")
			}
			return selfSignedKey(subject, publicKeyHex)
		default:
			return nil, errors.New("unexpected signing method")
		}
	}, jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithExpirationRequired())
	if err != nil {
		return crypto.AccountID{}, fmt.Errorf("%w: %v", errTokenInvalid, err)
	}
	if !token.Valid {
		return crypto.AccountID{}, errTokenInvalid
	}
	claims, _ := token.Claims.(jwt.MapClaims)
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return crypto.AccountID{}, fmt.Errorf("%w: %v", errTokenInvalid, err)
	}
	return subject, nil
}

// selfSignedKey returns the verification key for a subject. Raw accounts are
// the public key itself; hashed accounts need the key supplied out of band.
func selfSignedKey(subject crypto.AccountID, publicKeyHex string) (ed25519.PublicKey, error) {
	if strings.TrimSpace(publicKeyHex) == "" {
		return ed25519.PublicKey(subject.Bytes()), nil
	}
	pub, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(publicKeyHex), "0x"))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, errors.New("malformed public key header")
	}
	if crypto.HashedAccount(pub) != subject && !strings.EqualFold(hex.EncodeToString(pub), subject.Hex()) {
		return nil, errors.New("public key does not match subject")
	}
	return ed25519.PublicKey(pub), nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, err := claims.GetIssuer(); err != nil || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		values, err := claims.GetAudience()
		if err != nil {
			return errors.New("audience mismatch")
		}
		matched := false
		for _, entry := range values {
			if entry == audience {
				matched = true
				break
			}
		}
		if !matched {
			return errors.New("audience mismatch")
		}
	}
	return nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IssueToken mints an operator token for subject.
func IssueToken(secret string, subject crypto.AccountID, issuer, audience string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("rpc: secret required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims(subject, issuer, audience, ttl))
	return token.SignedString([]byte(strings.TrimSpace(secret)))
}

// SignSelfToken mints a token signed by the caller's own key.
func SignSelfToken(key *crypto.PrivateKey, issuer, audience string, ttl time.Duration) (string, error) {
	if key == nil {
		return "", errors.New("rpc: key required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, tokenClaims(key.Account(), issuer, audience, ttl))
	return token.SignedString(key.PrivateKey)
}

func tokenClaims(subject crypto.AccountID, issuer, audience string, ttl time.Duration) jwt.MapClaims {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return claims
}
