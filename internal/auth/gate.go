package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/credential"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

// CredentialFinder looks up stored credentials.
type CredentialFinder interface {
	Find(ctx context.Context, username string) (*credential.Credential, error)
}

// GateOptions configures a Gate.
type GateOptions struct {
	RequireAuth        bool
	ExemptActions      []string
	TimestampTolerance time.Duration
	Now                func() time.Time
	Logger             *zap.Logger
}

// Gate decides whether a request may reach its handler.
type Gate struct {
	users       CredentialFinder
	nonces      NonceGuard
	requireAuth atomic.Bool
	exempt      map[string]struct{}
	tolerance   time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewGate creates a gate over a credential store and nonce guard.
func NewGate(users CredentialFinder, nonces NonceGuard, opts GateOptions) *Gate {
	g := &Gate{
		users:     users,
		nonces:    nonces,
		exempt:    make(map[string]struct{}, len(opts.ExemptActions)),
		tolerance: opts.TimestampTolerance,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if g.tolerance <= 0 {
		g.tolerance = DefaultTimestampTolerance
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	for _, a := range opts.ExemptActions {
		g.exempt[a] = struct{}{}
	}
	g.requireAuth.Store(opts.RequireAuth)
	return g
}

// SetRequireAuth switches authentication on or off at runtime.
func (g *Gate) SetRequireAuth(required bool) {
	g.requireAuth.Store(required)
	g.logger.Info("authentication policy changed", zap.Bool("required", required))
}

// RequireAuth reports the current policy.
func (g *Gate) RequireAuth() bool {
	return g.requireAuth.Load()
}

// Required reports whether action needs a valid token under the current policy.
func (g *Gate) Required(action string) bool {
	if !g.requireAuth.Load() {
		return false
	}
	_, exempt := g.exempt[action]
	return !exempt
}

// Authenticate checks the security header of a request for action.
//
// Checks run in a fixed order and stop at the first failure: token present,
// user exists, user enabled, Created fresh, nonce unseen, password matches.
// A nonce is recorded as soon as it passes, even if the password then fails.
// The error is non-nil only when the credential store or nonce guard failed;
// such requests must be refused.
func (g *Gate) Authenticate(ctx context.Context, action, header string) (Result, error) {
	if !g.Required(action) {
		return Result{Accepted: true, Anonymous: true}, nil
	}

	if strings.TrimSpace(header) == "" {
		return g.reject(action, "", ReasonMalformedToken, "missing security header"), nil
	}
	token, err := soap.ExtractToken(header)
	if err != nil {
		return g.reject(action, "", ReasonMalformedToken, err.Error()), nil
	}

	cred, err := g.users.Find(ctx, token.Username)
	if errors.Is(err, credential.ErrUserNotFound) {
		return g.reject(action, token.Username, ReasonNoSuchUser, ""), nil
	}
	if err != nil {
		return Result{Username: token.Username}, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !cred.Enabled {
		return g.reject(action, token.Username, ReasonDisabledUser, ""), nil
	}

	now := g.now()
	if token.Created != "" && !IsFresh(token.Created, g.tolerance, now) {
		return g.reject(action, token.Username, ReasonStaleTimestamp, "created="+token.Created), nil
	}

	if token.Nonce != "" {
		fresh, err := g.nonces.CheckAndInsert(ctx, token.Nonce, now)
		if err != nil {
			return Result{Username: token.Username}, err
		}
		if !fresh {
			return g.reject(action, token.Username, ReasonReplayedNonce, ""), nil
		}
	}

	if token.IsDigest {
		if !ValidateDigest(token.Password, token.Nonce, token.Created, cred.Password) {
			return g.reject(action, token.Username, ReasonBadPassword, "digest mismatch"), nil
		}
	} else {
		g.logger.Warn("plain text password authentication used, consider PasswordDigest",
			zap.String("username", token.Username), zap.String("action", action))
		if !equalSecret(token.Password, cred.Password) {
			return g.reject(action, token.Username, ReasonBadPassword, "password mismatch"), nil
		}
	}

	g.logger.Debug("authentication accepted", zap.String("username", token.Username), zap.String("action", action))
	return Result{Accepted: true, Username: token.Username}, nil
}

func (g *Gate) reject(action, username string, reason Reason, detail string) Result {
	fields := []zap.Field{zap.String("reason", reason.String()), zap.String("action", action)}
	if username != "" {
		fields = append(fields, zap.String("username", username))
	}
	if detail != "" {
		fields = append(fields, zap.String("detail", detail))
	}
	g.logger.Warn("authentication rejected", fields...)
	return Result{Reason: reason, Username: username}
}
