// Package service implements the session core: issuing refresh token
// families at login, rotating refresh tokens with reuse detection, and
// revoking sessions. Access tokens are stateless; every refresh token lives
// in the repository and is consumed at most once.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sessiongate/internal/security"
	"sessiongate/internal/session/domain"
	"sessiongate/internal/session/repository"
)

// Sentinel errors for the session core; the handler maps all rotation
// failures to one generic response and logs the kind server-side.
var (
	ErrInvalidSubject = errors.New("subject id is required")
	ErrTokenNotFound  = errors.New("refresh token not found")
	ErrTokenExpired   = errors.New("refresh token expired")
	ErrTokenRevoked   = errors.New("refresh token revoked")
	ErrReuseDetected  = errors.New("refresh token reuse detected; session family revoked")
)

// Revocation reasons carried on published session events.
const (
	ReasonLogout        = "logout"
	ReasonLogoutAll     = "logout_all"
	ReasonReuseDetected = "reuse_detected"
)

// Publisher notifies other instances and audit consumers about revocations.
type Publisher interface {
	PublishRevoked(ctx context.Context, subjectID, familyID, reason string) error
}

// AuthResult holds the outcome of Login or Rotate: a short-lived access token
// and the raw refresh secret. The secret is returned exactly once and is not
// recoverable from storage afterwards.
type AuthResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshSecret    string
	RefreshExpiresAt time.Time
	SubjectID        string
	FamilyID         string
}

// Service implements login, refresh token rotation, access verification, and
// logout over a record repository and a token codec.
type Service struct {
	repo       repository.Repository
	codec      *security.Codec
	publisher  Publisher // optional; nil disables event publishing
	refreshTTL time.Duration
	tracer     trace.Tracer
}

// NewService returns a Service with the given dependencies. publisher may be
// nil.
func NewService(repo repository.Repository, codec *security.Codec, publisher Publisher, refreshTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		codec:      codec,
		publisher:  publisher,
		refreshTTL: refreshTTL,
		tracer:     otel.Tracer("sessiongate/session"),
	}
}

// Login starts a new session family for an already-authenticated subject.
// Credential verification (password, SSO) happens upstream; this only mints
// the credential pair and persists the first refresh record.
func (s *Service) Login(ctx context.Context, subjectID string) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "session.login")
	defer span.End()

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, ErrInvalidSubject
	}

	familyID := uuid.New().String()
	span.SetAttributes(attribute.String("session.family_id", familyID))

	res, err := s.issue(ctx, subjectID, familyID, func(rec *domain.Record) error {
		return s.repo.Create(ctx, rec)
	})
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

// Rotate validates a presented refresh secret, atomically consumes it, and
// returns a fresh credential pair. Presenting an already-consumed secret is
// indistinguishable from replay of a stolen one, so it revokes the whole
// family and fails with ErrReuseDetected.
func (s *Service) Rotate(ctx context.Context, presentedSecret string) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "session.rotate")
	defer span.End()

	res, err := s.rotate(ctx, presentedSecret)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("session.family_id", res.FamilyID))
	return res, nil
}

func (s *Service) rotate(ctx context.Context, presentedSecret string) (*AuthResult, error) {
	tokenID := security.HashSecret(presentedSecret)
	rec, err := s.repo.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTokenNotFound
	}
	if rec.Expired(time.Now().UTC()) {
		return nil, ErrTokenExpired
	}
	switch rec.State {
	case domain.StateRevoked:
		return nil, ErrTokenRevoked
	case domain.StateRotated:
		return nil, s.onReuse(ctx, rec)
	}

	res, err := s.issue(ctx, rec.SubjectID, rec.FamilyID, func(succ *domain.Record) error {
		return s.repo.Rotate(ctx, tokenID, succ)
	})
	if errors.Is(err, repository.ErrNotActive) {
		// Lost a race on this token. Re-read to classify: a concurrent
		// rotation means reuse, a concurrent revocation means a dead session.
		cur, gerr := s.repo.Get(ctx, tokenID)
		if gerr != nil {
			return nil, gerr
		}
		if cur == nil {
			return nil, ErrTokenNotFound
		}
		if cur.State == domain.StateRotated {
			return nil, s.onReuse(ctx, cur)
		}
		return nil, ErrTokenRevoked
	}
	return res, err
}

// issue mints a fresh refresh secret and access token for the subject,
// persisting the new record via persist (a plain insert at login, the atomic
// rotate primitive on refresh).
func (s *Service) issue(ctx context.Context, subjectID, familyID string, persist func(*domain.Record) error) (*AuthResult, error) {
	secret, err := security.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &domain.Record{
		TokenID:   security.HashSecret(secret),
		FamilyID:  familyID,
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
		State:     domain.StateActive,
	}
	if err := persist(rec); err != nil {
		return nil, err
	}
	access, accessExp, err := s.codec.IssueAccess(subjectID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshSecret:    secret,
		RefreshExpiresAt: rec.ExpiresAt,
		SubjectID:        subjectID,
		FamilyID:         familyID,
	}, nil
}

// onReuse revokes the whole family of a replayed token. Revocation must
// commit before the error is surfaced; event publishing is best-effort.
func (s *Service) onReuse(ctx context.Context, rec *domain.Record) error {
	if err := s.repo.RevokeFamily(ctx, rec.FamilyID); err != nil {
		return err
	}
	s.publishRevoked(ctx, rec.SubjectID, rec.FamilyID, ReasonReuseDetected)
	return ErrReuseDetected
}

// VerifyAccess checks an access token's signature and expiry and returns its
// subject. Pure computation; never touches the repository.
func (s *Service) VerifyAccess(token string) (subjectID string, err error) {
	return s.codec.VerifyAccess(token)
}

// Logout revokes the single session identified by the presented refresh
// secret. Idempotent: an unknown or already-revoked secret is not an error,
// so repeated logouts and probing both look the same to the caller.
func (s *Service) Logout(ctx context.Context, presentedSecret string) error {
	ctx, span := s.tracer.Start(ctx, "session.logout")
	defer span.End()

	tokenID := security.HashSecret(presentedSecret)
	rec, err := s.repo.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if err := s.repo.RevokeToken(ctx, tokenID); err != nil {
		return err
	}
	s.publishRevoked(ctx, rec.SubjectID, rec.FamilyID, ReasonLogout)
	return nil
}

// LogoutAll revokes every session family belonging to the subject. Used for
// "log out everywhere" and after credential changes. Idempotent.
func (s *Service) LogoutAll(ctx context.Context, subjectID string) error {
	ctx, span := s.tracer.Start(ctx, "session.logout_all")
	defer span.End()

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return ErrInvalidSubject
	}
	if err := s.repo.RevokeAllBySubject(ctx, subjectID); err != nil {
		return err
	}
	s.publishRevoked(ctx, subjectID, "", ReasonLogoutAll)
	return nil
}

func (s *Service) publishRevoked(ctx context.Context, subjectID, familyID, reason string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRevoked(ctx, subjectID, familyID, reason); err != nil {
		log.Printf("session: publish revoked event (%s): %v", reason, err)
	}
}
