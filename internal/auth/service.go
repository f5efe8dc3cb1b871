package auth

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"civicdesk/internal/audit"
	"civicdesk/internal/auth/secrets"
	"civicdesk/internal/auth/token"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/email"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
	"civicdesk/pkg/requestcontext"
)

const (
	DefaultMaxAttempts  = 5
	DefaultLockout      = 15 * time.Minute
	DefaultTwoFactorTTL = 5 * time.Minute

	minPasswordLen = 8
)

var (
	errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	errNoChallenge        = dErrors.New(dErrors.CodeBadRequest, "no pending two-factor verification")

	usernamePattern = regexp.MustCompile(`^[a-z0-9._-]{3,64}$`)
)

// Tokens issues and parses the JWT pair.
type Tokens interface {
	IssuePair(sub token.Subject) (token.Pair, error)
	Parse(tokenString, tokenType string) (*token.Claims, error)
	Remaining(claims *token.Claims) time.Duration
}

// Revocations records logged-out token ids.
type Revocations interface {
	RevokeTokens(ctx context.Context, jtis []string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

// Config holds the lockout and second-factor policy.
type Config struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	// RequireTwoFactor forces the second factor for every account, not only
	// those that enabled it.
	RequireTwoFactor bool
	TwoFactorTTL     time.Duration
}

type Service struct {
	users       UserStore
	challenges  ChallengeStore
	tokens      Tokens
	revocations Revocations
	notifier    Notifier
	cfg         Config
	locks       *txcontext.KeyLock
	auditor     AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(a AuditRecorder) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.MaxAttempts > 0 {
			s.cfg.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.LockoutDuration > 0 {
			s.cfg.LockoutDuration = cfg.LockoutDuration
		}
		if cfg.TwoFactorTTL > 0 {
			s.cfg.TwoFactorTTL = cfg.TwoFactorTTL
		}
		s.cfg.RequireTwoFactor = cfg.RequireTwoFactor
	}
}

func NewService(users UserStore, challenges ChallengeStore, tokens Tokens, revocations Revocations, opts ...Option) *Service {
	s := &Service{
		users:       users,
		challenges:  challenges,
		tokens:      tokens,
		revocations: revocations,
		cfg: Config{
			MaxAttempts:     DefaultMaxAttempts,
			LockoutDuration: DefaultLockout,
			TwoFactorTTL:    DefaultTwoFactorTTL,
		},
		locks:   txcontext.NewKeyLock(),
		auditor: nopAuditor{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	return s
}

// LoginRequest is the password step.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Username = strings.ToLower(strings.TrimSpace(r.Username))
}

func (r *LoginRequest) Validate() error {
	fields := map[string]string{}
	if r.Username == "" {
		fields["username"] = "required"
	}
	if r.Password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return dErrors.NewValidation("username and password are required", fields)
	}
	return nil
}

// LoginResult carries either tokens or an outstanding second-factor
// challenge.
type LoginResult struct {
	Tokens            *token.Pair
	TwoFactorRequired bool
	ChallengeID       id.SessionID
	ExpiresIn         int
}

// Login checks the password. Failures are counted per account; reaching
// MaxAttempts locks it for LockoutDuration. Unknown usernames and wrong
// passwords get the same answer.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *LoginResult
	err := s.locks.WithKey(ctx, "login:"+req.Username, func(ctx context.Context) error {
		var err error
		result, err = s.login(ctx, req)
		return err
	})
	return result, err
}

func (s *Service) login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	now := s.now()
	user, err := s.users.FindByUsername(ctx, req.Username)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionLoginFailed,
			TargetType: audit.TargetUser,
			Details:    map[string]any{"reason": "invalid_credentials"},
			ActorName:  req.Username,
		})
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if user.IsLocked(now) {
		s.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionLoginFailed,
			TargetType: audit.TargetUser,
			TargetID:   user.ID.String(),
			Details:    map[string]any{"reason": "locked"},
			ActorName:  user.Username,
		})
		return nil, lockedError(user.LockedUntil.Sub(now))
	}

	if !secrets.ComparePassword(user.PasswordHash, req.Password) {
		return nil, s.recordFailure(ctx, user, now, "invalid_credentials")
	}

	if user.TwoFactor || s.cfg.RequireTwoFactor {
		return s.startChallenge(ctx, user, now)
	}

	pair, err := s.complete(ctx, user, now, audit.ActionLoginSuccess)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Tokens: pair}, nil
}

// recordFailure counts a failed attempt and locks the account when the
// threshold is reached. The counter restarts after a lock.
func (s *Service) recordFailure(ctx context.Context, user *User, now time.Time, reason string) error {
	user.FailedAttempts++
	locked := false
	if user.FailedAttempts >= s.cfg.MaxAttempts {
		until := now.Add(s.cfg.LockoutDuration)
		user.LockedUntil = &until
		user.FailedAttempts = 0
		locked = true
	}
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}

	action := audit.ActionLoginFailed
	if reason == "invalid_code" {
		action = audit.ActionVerify2FAFailed
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     action,
		TargetType: audit.TargetUser,
		TargetID:   user.ID.String(),
		Details:    map[string]any{"reason": reason, "attempts": user.FailedAttempts, "locked": locked},
		ActorName:  user.Username,
	})
	if locked {
		s.logger.WarnContext(ctx, "account locked after repeated failures",
			"request_id", requestcontext.RequestID(ctx),
			"username", user.Username,
		)
	}
	if reason == "invalid_code" {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid code")
	}
	return errInvalidCredentials
}

func lockedError(remaining time.Duration) error {
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	return dErrors.Newf(dErrors.CodeForbidden, "account locked, try again in %d minutes", minutes)
}

func (s *Service) startChallenge(ctx context.Context, user *User, now time.Time) (*LoginResult, error) {
	code, err := secrets.GenerateOTP()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	c := &Challenge{
		ID:        id.NewSessionID(),
		UserID:    user.ID,
		CodeHash:  secrets.HashOTP(code),
		ExpiresAt: now.Add(s.cfg.TwoFactorTTL),
		CreatedAt: now,
	}
	if err := s.challenges.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store challenge")
	}
	if err := s.notifier.SendCode(ctx, user, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver code")
	}
	return &LoginResult{
		TwoFactorRequired: true,
		ChallengeID:       c.ID,
		ExpiresIn:         int(s.cfg.TwoFactorTTL.Seconds()),
	}, nil
}

// complete resets the failure state, stamps the login and issues tokens.
func (s *Service) complete(ctx context.Context, user *User, now time.Time, action audit.Action) (*token.Pair, error) {
	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}

	pair, err := s.tokens.IssuePair(token.Subject{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		return nil, err
	}

	actorCtx := requestcontext.WithActor(ctx, requestcontext.ActorInfo{ID: user.ID, Name: user.Username, Role: user.Role})
	s.auditor.Record(actorCtx, audit.Event{
		Action:     action,
		TargetType: audit.TargetUser,
		TargetID:   user.ID.String(),
	})
	return &pair, nil
}

// Verify2FARequest answers a login challenge.
type Verify2FARequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

func (r *Verify2FARequest) Normalize() {
	r.ChallengeID = strings.TrimSpace(r.ChallengeID)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *Verify2FARequest) Validate() error {
	fields := map[string]string{}
	if _, err := id.ParseSessionID(r.ChallengeID); err != nil {
		fields["challenge_id"] = "invalid"
	}
	if len(r.Code) != secrets.OTPDigits {
		fields["code"] = "must be 6 digits"
	}
	if len(fields) > 0 {
		return dErrors.NewValidation("invalid verification request", fields)
	}
	return nil
}

// Verify2FA completes a login. A wrong code counts as a failed attempt
// against the account.
func (s *Service) Verify2FA(ctx context.Context, req Verify2FARequest) (*token.Pair, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	challengeID, _ := id.ParseSessionID(req.ChallengeID)
	now := s.now()

	c, err := s.challenges.Get(ctx, challengeID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, errNoChallenge
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load challenge")
	}
	if c.Used {
		return nil, errNoChallenge
	}
	if !now.Before(c.ExpiresAt) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "code expired, log in again")
	}

	user, err := s.users.FindByID(ctx, c.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, errNoChallenge
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if user.IsLocked(now) {
		return nil, lockedError(user.LockedUntil.Sub(now))
	}

	if !secrets.MatchOTP(c.CodeHash, req.Code) {
		var failure error
		lockErr := s.locks.WithKey(ctx, "login:"+user.Username, func(ctx context.Context) error {
			fresh, err := s.users.FindByID(ctx, user.ID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
			}
			failure = s.recordFailure(ctx, fresh, now, "invalid_code")
			return nil
		})
		if lockErr != nil {
			return nil, lockErr
		}
		return nil, failure
	}

	if err := s.challenges.MarkUsed(ctx, c.ID); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) || errors.Is(err, sentinel.ErrNotFound) {
			return nil, errNoChallenge
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume challenge")
	}
	return s.complete(ctx, user, now, audit.ActionVerify2FASuccess)
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is revoked so it cannot be replayed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	claims, err := s.tokens.Parse(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}
	revoked, err := s.revocations.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check revocation")
	}
	if revoked {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid user")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if user.IsLocked(s.now()) {
		return nil, lockedError(user.LockedUntil.Sub(s.now()))
	}

	if ttl := s.tokens.Remaining(claims); ttl > 0 {
		if err := s.revocations.RevokeTokens(ctx, []string{claims.ID}, ttl); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rotate refresh token")
		}
	}
	pair, err := s.tokens.IssuePair(token.Subject{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Logout revokes the presented access token and, when given, the refresh
// token issued with it.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	actor := requestcontext.Actor(ctx)
	if actor.IsAnonymous() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	access, err := s.tokens.Parse(accessToken, token.TypeAccess)
	if err != nil {
		return err
	}
	if err := s.revoke(ctx, access); err != nil {
		return err
	}
	if refreshToken != "" {
		refresh, err := s.tokens.Parse(refreshToken, token.TypeRefresh)
		if err == nil && refresh.UserID == access.UserID {
			if err := s.revoke(ctx, refresh); err != nil {
				return err
			}
		}
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionLogout,
		TargetType: audit.TargetUser,
		TargetID:   actor.ID.String(),
	})
	return nil
}

func (s *Service) revoke(ctx context.Context, claims *token.Claims) error {
	ttl := s.tokens.Remaining(claims)
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.RevokeTokens(ctx, []string{claims.ID}, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	return nil
}

// Me returns the authenticated account.
func (s *Service) Me(ctx context.Context) (*User, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsAnonymous() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.users.FindByID(ctx, actor.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid user")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// NewUser describes an account to create.
type NewUser struct {
	Username    string
	Password    string
	Email       string
	DisplayName string
	Role        string
	TwoFactor   bool
}

func (n *NewUser) Normalize() {
	n.Username = strings.ToLower(strings.TrimSpace(n.Username))
	n.Email = email.Normalize(n.Email)
	n.DisplayName = strings.TrimSpace(n.DisplayName)
}

func (n *NewUser) Validate() error {
	fields := map[string]string{}
	if !usernamePattern.MatchString(n.Username) {
		fields["username"] = "3 to 64 characters: letters, digits, dot, dash, underscore"
	}
	if len(n.Password) < minPasswordLen {
		fields["password"] = "at least 8 characters"
	}
	if !id.ValidRole(n.Role) {
		fields["role"] = "must be admin or agent"
	}
	if n.Email != "" && !email.Valid(n.Email) {
		fields["email"] = "invalid email"
	}
	if len(fields) > 0 {
		return dErrors.NewValidation("invalid user", fields)
	}
	return nil
}

// CreateUser adds a staff account.
func (s *Service) CreateUser(ctx context.Context, n NewUser) (*User, error) {
	n.Normalize()
	if err := n.Validate(); err != nil {
		return nil, err
	}
	hash, err := secrets.HashPassword(n.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	displayName := n.DisplayName
	if displayName == "" && n.Email != "" {
		displayName = email.DisplayName(n.Email)
	}
	if displayName == "" {
		displayName = n.Username
	}

	now := s.now().UTC()
	user := &User{
		ID:           id.NewUserID(),
		Username:     n.Username,
		Email:        n.Email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         n.Role,
		TwoFactor:    n.TwoFactor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionCreate,
		TargetType: audit.TargetUser,
		TargetID:   user.ID.String(),
		Details:    map[string]any{"username": user.Username, "role": user.Role},
	})
	return user, nil
}

// EnsureAdmin creates an admin account unless the username is taken. It
// reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (*User, bool, error) {
	existing, err := s.users.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	user, err := s.CreateUser(ctx, NewUser{Username: username, Password: password, Role: id.RoleAdmin})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}
