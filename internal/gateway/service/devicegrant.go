package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/pkg/cryptox"
	"github.com/aussiebroadwan/chatgate/pkg/idx"
	"github.com/aussiebroadwan/chatgate/pkg/jwtx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

var (
	ErrGrantNotFound = errors.New("grant_not_found")

	// ErrGrantExpired covers expired grants and, deliberately, grants whose
	// token was already minted. A device code that was stolen and replayed
	// after consumption learns nothing beyond "gone".
	ErrGrantExpired = errors.New("grant_expired")

	// ErrGrantPending means the grant is still waiting on a decision.
	ErrGrantPending = errors.New("grant_pending")

	// ErrGrantDenied means the approver rejected the grant.
	ErrGrantDenied = errors.New("grant_denied")

	// ErrGrantResolved means the grant already received a decision.
	ErrGrantResolved = errors.New("grant_already_resolved")
)

const (
	// DefaultGrantTTL is how long a device grant may sit before it expires,
	// whatever state it is in.
	DefaultGrantTTL = 10 * time.Minute

	// DefaultPollInterval is the minimum seconds clients should wait
	// between token polls.
	DefaultPollInterval = 5 * time.Second

	// userCodeLength is the length of the human-enterable code.
	userCodeLength = 8

	// userCodeAlphabet excludes 0/O and 1/I so the code survives being read
	// aloud or scrawled on a sticky note.
	userCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// userCodeMaxAttempts caps collision regeneration. With a 32^8 space
	// hitting this means the RNG is broken, not that we are unlucky.
	userCodeMaxAttempts = 5
)

// DeviceGrantService runs the device authorization flow: a device asks for a
// code pair, a signed-in user approves or denies it by user code, and the
// device polls the device code until it turns into an access token. Minting
// is exactly-once; the winning poll flips the grant to consumed with a
// conditional update and every later poll sees it as gone.
type DeviceGrantService struct {
	Store  store.Store
	Signer *jwtx.Signer
	Issuer string

	GrantTTL     time.Duration
	TokenTTL     time.Duration
	PollInterval time.Duration

	// VerificationURI is the page approvers are told to visit.
	VerificationURI string

	// newUserCode generates candidate user codes. Tests inject a
	// deterministic generator to exercise collision handling.
	newUserCode func() (string, error)
}

func (s *DeviceGrantService) grantTTL() time.Duration {
	if s.GrantTTL <= 0 {
		return DefaultGrantTTL
	}
	return s.GrantTTL
}

func (s *DeviceGrantService) tokenTTL() time.Duration {
	if s.TokenTTL <= 0 {
		return jwtx.DefaultAccessTokenTTL
	}
	return s.TokenTTL
}

func (s *DeviceGrantService) pollInterval() time.Duration {
	if s.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return s.PollInterval
}

// TokenLifetime reports the TTL minted tokens carry, with defaults applied.
func (s *DeviceGrantService) TokenLifetime() time.Duration {
	return s.tokenTTL()
}

// SetUserCodeGenerator overrides the user code source. Test hook.
func (s *DeviceGrantService) SetUserCodeGenerator(gen func() (string, error)) {
	s.newUserCode = gen
}

// CodePair is what a device receives when it starts the flow. DeviceCode is
// the only copy of the plaintext; the store holds a fingerprint.
type CodePair struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       int64
	Interval        int64
}

// RequestCode starts a device authorization grant for the given scopes.
func (s *DeviceGrantService) RequestCode(ctx context.Context, scopes []string) (*CodePair, error) {
	deviceCode, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	grant := domain.DeviceGrant{
		ID:           idx.New(),
		DeviceCodeFP: cryptox.FingerprintToken(deviceCode),
		Scopes:       scopes,
		Status:       domain.GrantStatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.grantTTL()),
	}

	// User codes are short enough to collide with live grants. Regenerate
	// on a unique violation instead of failing the device.
	genCode := s.newUserCode
	if genCode == nil {
		genCode = randomUserCode
	}
	for attempt := 0; ; attempt++ {
		grant.UserCode, err = genCode()
		if err != nil {
			return nil, err
		}

		err = s.Store.DeviceGrants().CreateDeviceGrant(ctx, grant)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, err
		}
		if attempt+1 >= userCodeMaxAttempts {
			return nil, fmt.Errorf("device grant: user code space exhausted after %d attempts", userCodeMaxAttempts)
		}
		slogx.FromContext(ctx).Warn("user code collision, regenerating",
			slog.Int("attempt", attempt+1))
	}

	slogx.FromContext(ctx).Info("device grant created",
		slog.String("grant_id", grant.ID.String()),
		slog.String("user_code", grant.UserCode),
	)

	return &CodePair{
		DeviceCode:      deviceCode,
		UserCode:        grant.UserCode,
		VerificationURI: s.VerificationURI,
		ExpiresIn:       int64(s.grantTTL().Seconds()),
		Interval:        int64(s.pollInterval().Seconds()),
	}, nil
}

// Lookup returns the grant behind a user code so an approver can review it.
// Only pending, unexpired grants are visible; everything else reads as not
// found.
func (s *DeviceGrantService) Lookup(ctx context.Context, userCode string) (domain.DeviceGrant, error) {
	grant, err := s.Store.DeviceGrants().GetDeviceGrantByUserCode(ctx, userCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DeviceGrant{}, ErrGrantNotFound
		}
		return domain.DeviceGrant{}, err
	}
	if !grant.Pending(time.Now().UTC()) {
		return domain.DeviceGrant{}, ErrGrantNotFound
	}
	return grant, nil
}

// Resolve records the approver's decision on a pending grant. The first
// decision wins; a second one gets ErrGrantResolved regardless of direction.
func (s *DeviceGrantService) Resolve(ctx context.Context, userCode, subjectID string, approve bool) error {
	now := time.Now().UTC()

	status := domain.GrantStatusDenied
	if approve {
		status = domain.GrantStatusAuthorized
	}

	ok, err := s.Store.DeviceGrants().ResolveDeviceGrant(ctx, userCode, status, subjectID, now)
	if err != nil {
		return err
	}
	if ok {
		slogx.FromContext(ctx).Info("device grant resolved",
			slog.String("user_code", userCode),
			slog.String("status", string(status)),
			slog.String("resolved_by", subjectID),
		)
		return nil
	}

	// The conditional update missed. Read the grant back to report why.
	grant, err := s.Store.DeviceGrants().GetDeviceGrantByUserCode(ctx, userCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrGrantNotFound
		}
		return err
	}
	if grant.Expired(now) {
		return ErrGrantExpired
	}
	return ErrGrantResolved
}

// Poll attempts to exchange a device code for an access token. It returns
// ErrGrantPending while the approver has not decided, ErrGrantDenied after a
// denial, and ErrGrantExpired for expired or already-consumed grants. On the
// single successful call it mints and returns the access token.
func (s *DeviceGrantService) Poll(ctx context.Context, deviceCode string) (string, *domain.DeviceGrant, error) {
	now := time.Now().UTC()
	fp := cryptox.FingerprintToken(deviceCode)

	grant, err := s.Store.DeviceGrants().GetDeviceGrantByDeviceCodeFP(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrGrantNotFound
		}
		return "", nil, err
	}

	if grant.Expired(now) {
		return "", nil, ErrGrantExpired
	}

	switch grant.Status {
	case domain.GrantStatusPending:
		return "", nil, ErrGrantPending
	case domain.GrantStatusDenied:
		return "", nil, ErrGrantDenied
	case domain.GrantStatusConsumed:
		return "", nil, ErrGrantExpired
	}

	// Authorized. Exactly one concurrent poll wins the conditional flip to
	// consumed; the rest land in the consumed case above on re-read, so
	// report expired here too.
	ok, err := s.Store.DeviceGrants().ConsumeDeviceGrant(ctx, fp, now)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrGrantExpired
	}

	claims := jwtx.NewAccessClaims(grant.SubjectID, grant.Scopes, s.tokenTTL(), s.Issuer, now)
	token, err := s.Signer.Sign(claims)
	if err != nil {
		return "", nil, err
	}

	slogx.FromContext(ctx).Info("access token minted from device grant",
		slog.String("grant_id", grant.ID.String()),
		slog.String("sub", grant.SubjectID),
	)
	return token, &grant, nil
}

// randomUserCode draws a code from the unambiguous alphabet. The alphabet
// has 32 characters, which divides 256, so plain modulo stays uniform.
func randomUserCode() (string, error) {
	const n = len(userCodeAlphabet)
	buf := make([]byte, userCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, userCodeLength)
	for i, b := range buf {
		code[i] = userCodeAlphabet[int(b)%n]
	}
	return string(code), nil
}
