package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sessiongate/internal/security"
	"sessiongate/internal/session/domain"
	"sessiongate/internal/session/repository/memory"
)

type capturedEvent struct {
	SubjectID string
	FamilyID  string
	Reason    string
}

type memPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *memPublisher) PublishRevoked(ctx context.Context, subjectID, familyID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{subjectID, familyID, reason})
	return nil
}

func (p *memPublisher) byReason(reason string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *memory.Repository, *memPublisher) {
	t.Helper()
	codec, err := security.NewTestCodec(15 * time.Minute)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	repo := memory.NewRepository()
	pub := &memPublisher{}
	return NewService(repo, codec, pub, 30*24*time.Hour), repo, pub
}

func mustState(t *testing.T, repo *memory.Repository, secret string) domain.State {
	t.Helper()
	rec, err := repo.Get(context.Background(), security.HashSecret(secret))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatalf("record for secret not found")
	}
	return rec.State
}

func TestLogin_IssuesCredentialPair(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, "7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshSecret == "" {
		t.Fatal("Login returned empty credentials")
	}
	if res.FamilyID == "" {
		t.Fatal("Login returned empty family id")
	}

	sub, err := svc.VerifyAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if sub != "7" {
		t.Errorf("subject = %q, want %q", sub, "7")
	}

	rec, err := repo.Get(ctx, security.HashSecret(res.RefreshSecret))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatal("refresh record not persisted")
	}
	if rec.State != domain.StateActive {
		t.Errorf("state = %q, want active", rec.State)
	}
	if rec.FamilyID != res.FamilyID || rec.SubjectID != "7" {
		t.Errorf("record family/subject mismatch: %+v", rec)
	}
}

func TestLogin_EmptySubject(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Login(context.Background(), "  "); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Login with blank subject = %v, want ErrInvalidSubject", err)
	}
}

// Replaying a rotated secret revokes the whole family, including the
// still-active successor, whose own rotation then fails as revoked rather
// than as reuse.
func TestRotate_ReuseRevokesFamily(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	s0 := login.RefreshSecret

	rot, err := svc.Rotate(ctx, s0)
	if err != nil {
		t.Fatalf("Rotate(S0): %v", err)
	}
	s1 := rot.RefreshSecret
	if rot.FamilyID != login.FamilyID {
		t.Errorf("successor family = %q, want %q", rot.FamilyID, login.FamilyID)
	}
	if got := mustState(t, repo, s0); got != domain.StateRotated {
		t.Errorf("S0 state = %q, want rotated", got)
	}

	if _, err := svc.Rotate(ctx, s0); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("Rotate(S0) replay = %v, want ErrReuseDetected", err)
	}
	if got := mustState(t, repo, s1); got != domain.StateRevoked {
		t.Errorf("S1 state after cascade = %q, want revoked", got)
	}

	// S1 was never used before the cascade, so its rotation fails as revoked.
	if _, err := svc.Rotate(ctx, s1); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Rotate(S1) = %v, want ErrTokenRevoked", err)
	}

	events := pub.byReason(ReasonReuseDetected)
	if len(events) != 1 {
		t.Fatalf("reuse events = %d, want 1", len(events))
	}
	if events[0].FamilyID != login.FamilyID || events[0].SubjectID != "7" {
		t.Errorf("reuse event = %+v", events[0])
	}
}

func TestRotate_UnknownSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	secret, err := security.NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}
	if _, err := svc.Rotate(context.Background(), secret); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Rotate(unknown) = %v, want ErrTokenNotFound", err)
	}
}

func TestRotate_Expired(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	secret, err := security.NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}
	now := time.Now().UTC()
	err = repo.Create(ctx, &domain.Record{
		TokenID:   security.HashSecret(secret),
		FamilyID:  "fam",
		SubjectID: "7",
		IssuedAt:  now.Add(-31 * 24 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
		State:     domain.StateActive,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Rotate(ctx, secret); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Rotate(expired) = %v, want ErrTokenExpired", err)
	}
}

// Logout is a one-device operation: earlier rotated members of the family
// keep their state and only the presented token is revoked.
func TestLogout_SingleToken(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	s0 := login.RefreshSecret
	r1, err := svc.Rotate(ctx, s0)
	if err != nil {
		t.Fatalf("Rotate(S0): %v", err)
	}
	s1 := r1.RefreshSecret
	r2, err := svc.Rotate(ctx, s1)
	if err != nil {
		t.Fatalf("Rotate(S1): %v", err)
	}
	s2 := r2.RefreshSecret

	if err := svc.Logout(ctx, s2); err != nil {
		t.Fatalf("Logout(S2): %v", err)
	}
	if err := svc.Logout(ctx, s2); err != nil {
		t.Fatalf("Logout(S2) repeat: %v", err)
	}

	if got := mustState(t, repo, s2); got != domain.StateRevoked {
		t.Errorf("S2 state = %q, want revoked", got)
	}
	if got := mustState(t, repo, s0); got != domain.StateRotated {
		t.Errorf("S0 state = %q, want rotated (untouched)", got)
	}
	if got := mustState(t, repo, s1); got != domain.StateRotated {
		t.Errorf("S1 state = %q, want rotated (untouched)", got)
	}

	if _, err := svc.Rotate(ctx, s2); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Rotate(S2) = %v, want ErrTokenRevoked", err)
	}

	if got := len(pub.byReason(ReasonLogout)); got < 1 {
		t.Errorf("logout events = %d, want at least 1", got)
	}
}

func TestLogout_UnknownSecretIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)
	secret, err := security.NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}
	if err := svc.Logout(context.Background(), secret); err != nil {
		t.Errorf("Logout(unknown) = %v, want nil", err)
	}
}

func TestLogoutAll_RevokesEveryFamily(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	a, err := svc.Login(ctx, "7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	b, err := svc.Login(ctx, "7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	other, err := svc.Login(ctx, "8")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.LogoutAll(ctx, "7"); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if err := svc.LogoutAll(ctx, "7"); err != nil {
		t.Fatalf("LogoutAll repeat: %v", err)
	}

	for _, secret := range []string{a.RefreshSecret, b.RefreshSecret} {
		if _, err := svc.Rotate(ctx, secret); !errors.Is(err, ErrTokenRevoked) {
			t.Errorf("Rotate after LogoutAll = %v, want ErrTokenRevoked", err)
		}
	}
	if _, err := svc.Rotate(ctx, other.RefreshSecret); err != nil {
		t.Errorf("Rotate for other subject = %v, want success", err)
	}

	if got := len(pub.byReason(ReasonLogoutAll)); got != 2 {
		t.Errorf("logout_all events = %d, want 2", got)
	}
}

// Concurrent rotation of one secret: exactly one caller wins; every loser
// gets a terminal error after the reuse cascade.
func TestRotate_ConcurrentSingleUse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Rotate(ctx, login.RefreshSecret)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrReuseDetected), errors.Is(err, ErrTokenRevoked):
		default:
			t.Errorf("unexpected rotation error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("concurrent successes = %d, want exactly 1", successes)
	}
}
