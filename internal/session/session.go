// Package session wires configuration into ready-to-use remote and local stores.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/note-sync/internal/config"
	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/migrate"
	"github.com/and161185/note-sync/internal/repository/postgres"
	"github.com/and161185/note-sync/internal/repository/sqlite"
	"github.com/and161185/note-sync/internal/service"
)

// now is replaced in tests.
var now = time.Now

// AccountFromToken extracts the account UUID from a JWT subject.
// With a non-empty key the HS256 signature is verified; otherwise the token is parsed unverified.
// Either way the token must carry an expiry in the future.
func AccountFromToken(token string, key []byte) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, fmt.Errorf("%w: empty token", errs.ErrUnauthorized)
	}

	var claims jwt.RegisteredClaims
	var err error
	if len(key) > 0 {
		_, err = jwt.ParseWithClaims(token, &claims,
			func(*jwt.Token) (any, error) { return key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		)
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
		if err == nil {
			switch {
			case claims.ExpiresAt == nil:
				err = jwt.ErrTokenRequiredClaimMissing
			case !now().Before(claims.ExpiresAt.Time):
				err = jwt.ErrTokenExpired
			}
		}
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: subject %q is not an account id", errs.ErrUnauthorized, claims.Subject)
	}
	return id, nil
}

// Account resolves the account from cfg: an explicit account wins over the token.
func Account(cfg *config.Config) (uuid.UUID, error) {
	if cfg.Account != "" {
		id, err := uuid.FromString(cfg.Account)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: account %q", errs.ErrInvalidConfig, cfg.Account)
		}
		return id, nil
	}
	return AccountFromToken(cfg.RemoteToken, []byte(cfg.TokenKey))
}

// Session owns the stores of one account and the settings a Reconciler needs.
type Session struct {
	Remote *postgres.NoteRepo
	Local  *sqlite.Store
	Tag    string

	db        *postgres.DB
	log       *zap.Logger
	policy    service.Policy
	opTimeout time.Duration
}

// Open resolves the account, optionally migrates the remote schema, and opens both stores.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	account, err := Account(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MigrateRemote {
		if err := migrate.Remote(ctx, cfg.RemoteDSN); err != nil {
			return nil, fmt.Errorf("migrate remote: %w", err)
		}
		log.Info("remote schema migrated")
	}

	db, err := postgres.New(ctx, cfg.RemoteDSN)
	if err != nil {
		return nil, fmt.Errorf("connect remote: %w", err)
	}
	local, err := sqlite.Open(ctx, cfg.LocalPath, cfg.Passphrase)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open local: %w", err)
	}

	log.Info("session opened",
		zap.String("account", account.String()),
		zap.String("db", cfg.LocalPath),
		zap.Bool("sealed", local.Sealed()),
	)
	return &Session{
		Remote:    postgres.NewNoteRepo(db, account),
		Local:     local,
		Tag:       cfg.Tag,
		db:        db,
		log:       log,
		policy:    cfg.PolicyValue(),
		opTimeout: cfg.OpTimeout,
	}, nil
}

// Reconciler returns a Reconciler over the session stores. opts are applied after the session defaults.
func (s *Session) Reconciler(opts ...service.Option) *service.Reconciler {
	base := []service.Option{
		service.WithLogger(s.log),
		service.WithPolicy(s.policy),
		service.WithOpTimeout(s.opTimeout),
	}
	return service.NewReconciler(s.Remote, s.Local, s.Tag, append(base, opts...)...)
}

// Close releases both stores.
func (s *Session) Close() error {
	err := s.Local.Close()
	s.db.Close()
	return err
}
