package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/traceon/traceond/pkg/errdefs"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

// Identity is an authenticated principal
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

const (
	accountsRoot     = "system/accounts"
	accountIndexRoot = "system/accountIndex"

	tokenTTL = 24 * time.Hour
)

// account is the stored credential record, kept apart from the profile
// document so credentials never travel with profile subscriptions
type account struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

// Provider is the local identity provider: email/password accounts with
// JWT session tokens. Profiles are provisioned at signup.
type Provider struct {
	store  store.Store
	secret []byte
}

// NewProvider creates an identity provider signing tokens with secret
func NewProvider(st store.Store, secret string) *Provider {
	return &Provider{store: st, secret: []byte(secret)}
}

// SignUp creates a new account and its profile document. Owners are
// verified immediately; every other role waits for admin approval.
func (p *Provider) SignUp(email, password string, role types.Role, name string) (Identity, error) {
	if email == "" || len(password) < 6 {
		return Identity{}, fmt.Errorf("email and a password of at least 6 characters are required: %w", errdefs.ErrAuthFailure)
	}
	switch role {
	case types.RoleAdmin, types.RoleWarehouse, types.RoleTransporter, types.RoleOwner:
	default:
		return Identity{}, fmt.Errorf("unknown role %q: %w", role, errdefs.ErrAuthFailure)
	}

	indexPath := store.Join(accountIndexRoot, store.SanitizeKey(email))
	if existing, err := p.store.Get(indexPath); err != nil {
		return Identity{}, err
	} else if existing != nil {
		return Identity{}, fmt.Errorf("email already in use: %w", errdefs.ErrAuthFailure)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, err
	}

	uid := uuid.NewString()
	now := time.Now().UnixMilli()

	if err := p.store.Put(store.Join(accountsRoot, uid), account{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}); err != nil {
		return Identity{}, err
	}
	if err := p.store.Put(indexPath, uid); err != nil {
		return Identity{}, err
	}

	profile := types.UserProfile{
		Email:     email,
		Role:      role,
		Verified:  role == types.RoleOwner, // owners self-verify, others need admin approval
		CreatedAt: now,
		Name:      name,
	}
	if err := p.store.Put(store.ProfilePath(uid), profile); err != nil {
		return Identity{}, err
	}

	return Identity{ID: uid, Email: email}, nil
}

// Authenticate verifies credentials and refuses banned accounts
func (p *Provider) Authenticate(email, password string) (Identity, error) {
	indexPath := store.Join(accountIndexRoot, store.SanitizeKey(email))
	raw, err := p.store.Get(indexPath)
	if err != nil {
		return Identity{}, err
	}
	uid, ok := raw.(string)
	if !ok || uid == "" {
		return Identity{}, fmt.Errorf("no account for this email: %w", errdefs.ErrAuthFailure)
	}

	var acct account
	rawAcct, err := p.store.Get(store.Join(accountsRoot, uid))
	if err != nil {
		return Identity{}, err
	}
	if rawAcct == nil {
		return Identity{}, fmt.Errorf("no account for this email: %w", errdefs.ErrAuthFailure)
	}
	if err := store.Decode(rawAcct, &acct); err != nil {
		return Identity{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return Identity{}, fmt.Errorf("incorrect password: %w", errdefs.ErrAuthFailure)
	}

	var profile types.UserProfile
	rawProfile, err := p.store.Get(store.ProfilePath(uid))
	if err != nil {
		return Identity{}, err
	}
	if rawProfile != nil {
		if err := store.Decode(rawProfile, &profile); err != nil {
			return Identity{}, err
		}
		if profile.Banned {
			return Identity{}, fmt.Errorf("account is banned: %w", errdefs.ErrAuthFailure)
		}
	}

	return Identity{ID: uid, Email: acct.Email}, nil
}

// IssueToken signs a session token for an authenticated identity
func (p *Provider) IssueToken(id Identity) (string, error) {
	claims := jwt.MapClaims{
		"sub":   id.ID,
		"email": id.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// VerifyToken parses and validates a session token
func (p *Provider) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("invalid or expired token: %w", errdefs.ErrAuthFailure)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token claims: %w", errdefs.ErrAuthFailure)
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("token missing subject: %w", errdefs.ErrAuthFailure)
	}
	return Identity{ID: sub, Email: email}, nil
}
