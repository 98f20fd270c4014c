package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/enessayaci/heybe/internal/domain"
	"github.com/enessayaci/heybe/internal/repository"
	"github.com/enessayaci/heybe/internal/service/transfer"
	"github.com/enessayaci/heybe/pkg/config"
	"github.com/enessayaci/heybe/pkg/crypto"
	jwtpkg "github.com/enessayaci/heybe/pkg/jwt"
)

const minPasswordLength = 6

// Publisher delivers identityUpdated pushes to connected page contexts.
// Fire-and-forget; implementations must never block the caller for long.
type Publisher interface {
	PublishIdentityUpdated(identityID string, record domain.StorageRecord)
}

// Service handles the identity lifecycle: guest creation, registration,
// login, token authentication, and the claim flows that fold a guest's items
// into a permanent account.
type Service struct {
	identities repository.IdentityRepository
	transfers  transfer.Coordinator
	publisher  Publisher
	logger     *slog.Logger
	cfg        config.APIConfig
}

// New constructs a Service. publisher may be nil when no push channel is
// wired.
func New(identities repository.IdentityRepository, transfers transfer.Coordinator, publisher Publisher, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{identities: identities, transfers: transfers, publisher: publisher, logger: logger, cfg: cfg}
}

// Session couples an identity with its signed session token.
type Session struct {
	Identity domain.Identity
	Token    string
}

// Record projects a session into the {token, user} pair shared with page
// contexts.
func (s Session) Record() domain.StorageRecord {
	profile := domain.Profile(s.Identity)
	return domain.StorageRecord{Token: s.Token, User: &profile}
}

// CreateGuest provisions an anonymous identity with a synthetic email and
// returns it together with a session token.
func (s Service) CreateGuest(ctx context.Context) (Session, error) {
	now := time.Now().UTC()
	guest := domain.Guest{
		ID:        uuid.NewString(),
		Email:     syntheticGuestEmail(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.identities.CreateIdentity(ctx, guest); err != nil {
		return Session{}, fmt.Errorf("create guest identity: %w", err)
	}
	token, err := jwtpkg.GenerateToken(guest.ID, true, s.cfg.JWTSecret, s.cfg.GuestTokenTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue guest token: %w", err)
	}
	s.logger.Info("guest identity created", "identity_id", guest.ID)
	return Session{Identity: guest, Token: token}, nil
}

// Register creates a permanent identity for a human-chosen email and
// password.
func (s Service) Register(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateCredentials(email, password); err != nil {
		return Session{}, err
	}

	existing, err := s.identities.GetIdentityByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.IsGuest() {
			return Session{}, ErrEmailTaken
		}
	case !errors.Is(err, repository.ErrNotFound):
		return Session{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	registered := domain.Registered{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.identities.CreateIdentity(ctx, registered); err != nil {
		return Session{}, fmt.Errorf("create identity: %w", err)
	}
	token, err := jwtpkg.GenerateToken(registered.ID, false, s.cfg.JWTSecret, s.cfg.SessionTokenTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("identity registered", "identity_id", registered.ID)
	return Session{Identity: registered, Token: token}, nil
}

// Login authenticates an email/password pair. Unknown email, guest email and
// wrong password all fail with the same ErrUnauthorized.
func (s Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	ident, err := s.identities.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, fmt.Errorf("lookup email: %w", err)
	}
	registered, ok := ident.(domain.Registered)
	if !ok {
		// Guests hold no password; their synthetic email can never log in.
		return Session{}, ErrUnauthorized
	}
	if err := crypto.ComparePassword(registered.PasswordHash, password); err != nil {
		return Session{}, ErrUnauthorized
	}
	token, err := jwtpkg.GenerateToken(registered.ID, false, s.cfg.JWTSecret, s.cfg.SessionTokenTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("identity logged in", "identity_id", registered.ID)
	return Session{Identity: registered, Token: token}, nil
}

// AuthenticateToken verifies a session token and loads the bound identity.
// Any verification failure, and a token whose identity no longer exists,
// yield ErrUnauthorized.
func (s Service) AuthenticateToken(ctx context.Context, token string) (domain.Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, ErrUnauthorized
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, ErrUnauthorized
	}
	ident, err := s.identities.GetIdentityByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return ident, nil
}

// RegisterWithTransfer registers a permanent identity and, when the bearer
// identity is currently a guest, migrates its items best-effort. A failed
// migration never fails the registration.
func (s Service) RegisterWithTransfer(ctx context.Context, bearer domain.Identity, email, password string) (Session, error) {
	sess, err := s.Register(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	s.claimGuest(ctx, bearer, sess)
	return sess, nil
}

// LoginWithTransfer logs in and, when the bearer identity is currently a
// guest, migrates its items best-effort.
func (s Service) LoginWithTransfer(ctx context.Context, bearer domain.Identity, email, password string) (Session, error) {
	sess, err := s.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	s.claimGuest(ctx, bearer, sess)
	return sess, nil
}

// claimGuest runs the ownership transfer when the bearer is a guest and
// notifies page contexts that the shared identity changed.
func (s Service) claimGuest(ctx context.Context, bearer domain.Identity, sess Session) {
	if bearer != nil && bearer.IsGuest() && bearer.IdentityID() != sess.Identity.IdentityID() {
		s.transfers.BestEffort(ctx, bearer.IdentityID(), sess.Identity.IdentityID())
	}
	if s.publisher != nil {
		s.publisher.PublishIdentityUpdated(sess.Identity.IdentityID(), sess.Record())
	}
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return ErrValidation
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, ".") {
		return ErrValidation
	}
	if len(password) < minPasswordLength {
		return ErrValidation
	}
	return nil
}

func syntheticGuestEmail() string {
	// The .invalid TLD guarantees no human can register this address.
	return fmt.Sprintf("guest-%s@guest.heybe.invalid", uuid.NewString())
}
