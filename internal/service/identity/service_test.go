package identity

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/enessayaci/heybe/internal/domain"
	"github.com/enessayaci/heybe/internal/repository"
	"github.com/enessayaci/heybe/internal/service/transfer"
	"github.com/enessayaci/heybe/pkg/config"
	"github.com/enessayaci/heybe/pkg/crypto"
	jwtpkg "github.com/enessayaci/heybe/pkg/jwt"
)

type stubIdentityRepository struct {
	byEmail map[string]domain.Identity
	byID    map[string]domain.Identity
	created []domain.Identity
}

func newStubIdentityRepository() *stubIdentityRepository {
	return &stubIdentityRepository{
		byEmail: map[string]domain.Identity{},
		byID:    map[string]domain.Identity{},
	}
}

func (s *stubIdentityRepository) CreateIdentity(ctx context.Context, ident domain.Identity) error {
	s.created = append(s.created, ident)
	s.byEmail[ident.IdentityEmail()] = ident
	s.byID[ident.IdentityID()] = ident
	return nil
}

func (s *stubIdentityRepository) GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, error) {
	if ident, ok := s.byEmail[email]; ok {
		return ident, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubIdentityRepository) GetIdentityByID(ctx context.Context, id string) (domain.Identity, error) {
	if ident, ok := s.byID[id]; ok {
		return ident, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubIdentityRepository) DeleteIdentity(ctx context.Context, id string) (bool, error) {
	if _, ok := s.byID[id]; !ok {
		return false, nil
	}
	delete(s.byID, id)
	return true, nil
}

type stubTransferRepository struct {
	calls   [][2]string
	moved   int64
	retired bool
	err     error
}

func (s *stubTransferRepository) TransferOwnership(ctx context.Context, sourceID, targetID string) (int64, bool, error) {
	s.calls = append(s.calls, [2]string{sourceID, targetID})
	return s.moved, s.retired, s.err
}

type capturePublisher struct {
	identityID string
	record     domain.StorageRecord
	calls      int
}

func (c *capturePublisher) PublishIdentityUpdated(identityID string, record domain.StorageRecord) {
	c.identityID = identityID
	c.record = record
	c.calls++
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		JWTSecret:       "test-secret",
		SessionTokenTTL: time.Hour,
		GuestTokenTTL:   time.Hour,
	}
}

func newTestService(repo *stubIdentityRepository, transfers *stubTransferRepository, pub Publisher) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, transfer.New(transfers, log), pub, log, testConfig())
}

func TestCreateGuestIssuesGuestToken(t *testing.T) {
	repo := newStubIdentityRepository()
	svc := newTestService(repo, &stubTransferRepository{}, nil)

	sess, err := svc.CreateGuest(context.Background())
	if err != nil {
		t.Fatalf("CreateGuest returned error: %v", err)
	}
	if !sess.Identity.IsGuest() {
		t.Fatal("expected a guest identity")
	}
	if !strings.HasSuffix(sess.Identity.IdentityEmail(), "@guest.heybe.invalid") {
		t.Fatalf("unexpected synthetic email: %s", sess.Identity.IdentityEmail())
	}
	claims, err := jwtpkg.Parse(sess.Token, "test-secret")
	if err != nil {
		t.Fatalf("parse guest token: %v", err)
	}
	if !claims.Guest || claims.IdentityID != sess.Identity.IdentityID() {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 created identity, got %d", len(repo.created))
	}
}

func TestRegisterValidatesCredentials(t *testing.T) {
	svc := newTestService(newStubIdentityRepository(), &stubTransferRepository{}, nil)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "password1"},
		{"empty password", "a@b.com", ""},
		{"not an address", "not-an-email", "password1"},
		{"no dot in domain", "a@localhost", "password1"},
		{"short password", "a@b.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.email, tc.password); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRegisterRejectsTakenEmail(t *testing.T) {
	repo := newStubIdentityRepository()
	repo.byEmail["taken@example.com"] = domain.Registered{ID: "u-1", Email: "taken@example.com"}
	svc := newTestService(repo, &stubTransferRepository{}, nil)

	if _, err := svc.Register(context.Background(), "Taken@Example.com ", "password1"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	repo := newStubIdentityRepository()
	svc := newTestService(repo, &stubTransferRepository{}, nil)

	sess, err := svc.Register(context.Background(), "  User@Example.COM ", "password1")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if got := sess.Identity.IdentityEmail(); got != "user@example.com" {
		t.Fatalf("expected lowercased email, got %s", got)
	}
	if sess.Identity.IsGuest() {
		t.Fatal("registered identity must not be a guest")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	hash, err := crypto.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := newStubIdentityRepository()
	repo.byEmail["user@example.com"] = domain.Registered{ID: "u-1", Email: "user@example.com", PasswordHash: hash}
	repo.byEmail["ghost@guest.heybe.invalid"] = domain.Guest{ID: "g-1", Email: "ghost@guest.heybe.invalid"}
	svc := newTestService(repo, &stubTransferRepository{}, nil)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "correct-password"},
		{"guest email", "ghost@guest.heybe.invalid", "correct-password"},
		{"wrong password", "user@example.com", "wrong-password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Login(context.Background(), tc.email, tc.password); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestLoginSucceedsWithCorrectPassword(t *testing.T) {
	hash, err := crypto.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := newStubIdentityRepository()
	repo.byEmail["user@example.com"] = domain.Registered{ID: "u-1", Email: "user@example.com", PasswordHash: hash}
	svc := newTestService(repo, &stubTransferRepository{}, nil)

	sess, err := svc.Login(context.Background(), "user@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	claims, err := jwtpkg.Parse(sess.Token, "test-secret")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Guest || claims.IdentityID != "u-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestAuthenticateTokenLoadsIdentity(t *testing.T) {
	repo := newStubIdentityRepository()
	repo.byID["u-1"] = domain.Registered{ID: "u-1", Email: "user@example.com"}
	svc := newTestService(repo, &stubTransferRepository{}, nil)

	token, err := jwtpkg.GenerateToken("u-1", false, "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	ident, err := svc.AuthenticateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("AuthenticateToken returned error: %v", err)
	}
	if ident.IdentityID() != "u-1" {
		t.Fatalf("unexpected identity: %s", ident.IdentityID())
	}
}

func TestAuthenticateTokenRejectsBadTokens(t *testing.T) {
	repo := newStubIdentityRepository()
	svc := newTestService(repo, &stubTransferRepository{}, nil)

	orphan, err := jwtpkg.GenerateToken("gone", false, "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	foreign, err := jwtpkg.GenerateToken("u-1", false, "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	for _, token := range []string{"", "garbage", foreign, orphan} {
		if _, err := svc.AuthenticateToken(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized, got %v", token, err)
		}
	}
}

func TestRegisterWithTransferClaimsGuestItems(t *testing.T) {
	repo := newStubIdentityRepository()
	transfers := &stubTransferRepository{moved: 3, retired: true}
	pub := &capturePublisher{}
	svc := newTestService(repo, transfers, pub)

	guest := domain.Guest{ID: "g-1", Email: "g@guest.heybe.invalid"}
	sess, err := svc.RegisterWithTransfer(context.Background(), guest, "new@example.com", "password1")
	if err != nil {
		t.Fatalf("RegisterWithTransfer returned error: %v", err)
	}
	if len(transfers.calls) != 1 {
		t.Fatalf("expected 1 transfer call, got %d", len(transfers.calls))
	}
	if got := transfers.calls[0]; got[0] != "g-1" || got[1] != sess.Identity.IdentityID() {
		t.Fatalf("unexpected transfer pair: %v", got)
	}
	if pub.calls != 1 || pub.identityID != sess.Identity.IdentityID() {
		t.Fatalf("expected identityUpdated push for new identity, got %+v", pub)
	}
	if pub.record.Token != sess.Token {
		t.Fatal("pushed record must carry the new session token")
	}
}

func TestRegisterWithTransferSkipsNonGuestBearer(t *testing.T) {
	repo := newStubIdentityRepository()
	transfers := &stubTransferRepository{}
	pub := &capturePublisher{}
	svc := newTestService(repo, transfers, pub)

	bearer := domain.Registered{ID: "u-9", Email: "old@example.com"}
	if _, err := svc.RegisterWithTransfer(context.Background(), bearer, "new@example.com", "password1"); err != nil {
		t.Fatalf("RegisterWithTransfer returned error: %v", err)
	}
	if len(transfers.calls) != 0 {
		t.Fatalf("expected no transfer for non-guest bearer, got %d calls", len(transfers.calls))
	}
	if pub.calls != 1 {
		t.Fatal("identityUpdated push must still fire")
	}
}

func TestLoginWithTransferSurvivesTransferFailure(t *testing.T) {
	hash, err := crypto.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := newStubIdentityRepository()
	repo.byEmail["user@example.com"] = domain.Registered{ID: "u-1", Email: "user@example.com", PasswordHash: hash}
	transfers := &stubTransferRepository{err: errors.New("db down")}
	svc := newTestService(repo, transfers, nil)

	guest := domain.Guest{ID: "g-1", Email: "g@guest.heybe.invalid"}
	sess, err := svc.LoginWithTransfer(context.Background(), guest, "user@example.com", "correct-password")
	if err != nil {
		t.Fatalf("login must succeed despite transfer failure, got %v", err)
	}
	if sess.Identity.IdentityID() != "u-1" {
		t.Fatalf("unexpected identity: %s", sess.Identity.IdentityID())
	}
	if len(transfers.calls) != 1 {
		t.Fatalf("expected the transfer to be attempted, got %d calls", len(transfers.calls))
	}
}
