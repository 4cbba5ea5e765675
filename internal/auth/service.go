package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/logging"
	"github.com/ridehub/accounts/internal/model"
	"github.com/ridehub/accounts/internal/notify"
	"github.com/ridehub/accounts/internal/repo"
)

// DefaultOTPTTL is how long an issued code stays valid
const DefaultOTPTTL = 10 * time.Minute

var dashboards = map[string]string{
	model.RoleRider:  "/rider/dashboard",
	model.RoleDriver: "/driver/dashboard",
	model.RoleAdmin:  "/admin/dashboard",
}

// DashboardFor returns the client landing path for a role, or "" for unknown roles
func DashboardFor(role string) string {
	return dashboards[role]
}

// Options configures the account workflow
type Options struct {
	// OTPEnabled gates new accounts behind email and phone verification.
	// When false, accounts are created verified and nothing is dispatched.
	OTPEnabled bool
	OTPTTL     time.Duration
	OTPSalt    string
}

// Service runs the registration, verification, login and password reset workflow
type Service struct {
	users      repo.UserRepo
	roles      repo.RoleRepo
	hasher     Hasher
	tokens     *JWTService
	dispatcher notify.Dispatcher
	logger     *zap.Logger
	opts       Options

	now     func() time.Time
	newCode func() (string, error)
}

// NewService creates a new account service
func NewService(
	users repo.UserRepo,
	roles repo.RoleRepo,
	hasher Hasher,
	tokens *JWTService,
	dispatcher notify.Dispatcher,
	logger *zap.Logger,
	opts Options,
) *Service {
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = DefaultOTPTTL
	}
	return &Service{
		users:      users,
		roles:      roles,
		hasher:     hasher,
		tokens:     tokens,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		newCode:    GenerateCode,
	}
}

// RegisterInput is the data needed to open an account. The role is referenced by RoleID or RoleName.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Gender   string
	Password string
	RoleName string
	RoleID   string
}

// LoginResult is returned on successful authentication
type LoginResult struct {
	Token     string
	Dashboard string
	User      model.User
}

// ResetInput identifies the account by Email or Phone and carries the reset code
type ResetInput struct {
	Email       string
	Phone       string
	OTP         string
	NewPassword string
}

func validGender(g string) bool {
	switch g {
	case "", "male", "female", "other":
		return true
	}
	return false
}

func (s *Service) digest(channel, code string) string {
	return hashOTPHex(channel, code, s.opts.OTPSalt)
}

func (s *Service) expiry() *time.Time {
	exp := s.now().Add(s.opts.OTPTTL)
	return &exp
}

// Register creates a pending account and sends its verification codes, or an
// active account when OTP verification is disabled.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	if in.Email == "" || in.Phone == "" || in.Password == "" || (in.RoleName == "" && in.RoleID == "") {
		return model.User{}, ErrInvalidInput
	}
	if !validGender(in.Gender) {
		return model.User{}, fmt.Errorf("%w: gender must be male, female or other", ErrInvalidInput)
	}

	_, err := s.users.FindByContact(ctx, in.Email, in.Phone)
	if err == nil {
		return model.User{}, ErrAlreadyRegistered
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to check existing user: %w", err)
	}

	role, err := s.resolveRole(ctx, in.RoleID, in.RoleName)
	if err != nil {
		return model.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, err
	}

	now := s.now()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		Gender:       in.Gender,
		PasswordHash: hash,
		RoleID:       role.ID,
		Status:       model.StatusVerified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var emailCode, phoneCode string
	if s.opts.OTPEnabled {
		if emailCode, err = s.newCode(); err != nil {
			return model.User{}, err
		}
		if phoneCode, err = s.newCode(); err != nil {
			return model.User{}, err
		}
		user.Status = model.StatusPending
		user.EmailOTP = s.digest(channelEmail, emailCode)
		user.PhoneOTP = s.digest(channelPhone, phoneCode)
		user.OTPExpiresAt = s.expiry()
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return model.User{}, ErrAlreadyRegistered
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	if !s.opts.OTPEnabled {
		s.logger.Info("user registered", append(logging.Contact(in.Email, in.Phone), zap.String("user_id", created.ID))...)
		return created, nil
	}

	if err := s.sendChallenge(ctx, created.Email, emailCode, created.Phone, phoneCode); err != nil {
		// undo the registration so the client can retry with the same contacts
		if delErr := s.users.Delete(ctx, created.ID); delErr != nil && !errors.Is(delErr, repo.ErrNotFound) {
			s.logger.Error("failed to remove undeliverable registration", zap.String("user_id", created.ID), zap.Error(delErr))
		}
		return model.User{}, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	s.logger.Info("user registered, verification pending", append(logging.Contact(in.Email, in.Phone), zap.String("user_id", created.ID))...)
	return created, nil
}

func (s *Service) resolveRole(ctx context.Context, id, name string) (model.Role, error) {
	var (
		role model.Role
		err  error
	)
	if id != "" {
		role, err = s.roles.GetByID(ctx, id)
	} else {
		role, err = s.roles.GetByName(ctx, name)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Role{}, ErrInvalidRole
		}
		return model.Role{}, fmt.Errorf("failed to resolve role: %w", err)
	}
	return role, nil
}

// sendChallenge dispatches whichever codes are non-empty, email first
func (s *Service) sendChallenge(ctx context.Context, email, emailCode, phone, phoneCode string) error {
	if emailCode != "" {
		if err := s.dispatcher.SendEmailCode(ctx, email, emailCode); err != nil {
			return err
		}
	}
	if phoneCode != "" {
		if err := s.dispatcher.SendTextCode(ctx, phone, phoneCode); err != nil {
			return err
		}
	}
	return nil
}

// Verify completes a pending registration. Both codes must match before the
// challenge expires; otherwise the pending account is removed.
func (s *Service) Verify(ctx context.Context, email, emailCode, phoneCode string) error {
	if email == "" || emailCode == "" || phoneCode == "" {
		return ErrInvalidInput
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	var rejected bool
	_, err = s.users.Mutate(ctx, user.ID, func(u *model.User) error {
		rejected = false
		if u.Status == model.StatusVerified {
			return ErrAlreadyVerified
		}
		if !u.HasOpenChallenge() || s.now().After(*u.OTPExpiresAt) {
			return ErrOTPExpired
		}

		emailOK := matchOTP(u.EmailOTP, channelEmail, emailCode, s.opts.OTPSalt)
		phoneOK := matchOTP(u.PhoneOTP, channelPhone, phoneCode, s.opts.OTPSalt)
		u.ClearChallenge()
		if emailOK && phoneOK {
			u.Status = model.StatusVerified
			return nil
		}
		u.Status = model.StatusRejected
		rejected = true
		return nil
	})

	switch {
	case errors.Is(err, ErrOTPExpired):
		s.discard(ctx, user.ID, "expired")
		return ErrOTPExpired
	case errors.Is(err, repo.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, ErrAlreadyVerified):
		return err
	case err != nil:
		return fmt.Errorf("failed to verify user: %w", err)
	case rejected:
		s.discard(ctx, user.ID, "rejected")
		return ErrOTPMismatch
	}

	s.logger.Info("user verified", zap.String("user_id", user.ID))
	return nil
}

// discard removes a failed registration. Failures are logged since the
// sweeper or a later verify will retry the removal.
func (s *Service) discard(ctx context.Context, id, reason string) {
	if err := s.users.Delete(ctx, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.logger.Error("failed to remove registration", zap.String("user_id", id), zap.String("reason", reason), zap.Error(err))
		return
	}
	s.logger.Info("registration removed", zap.String("user_id", id), zap.String("reason", reason))
}

func (s *Service) findByContact(ctx context.Context, email, phone string) (model.User, error) {
	user, err := s.users.FindByContact(ctx, email, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// ResendOTP issues a fresh code for each supplied channel of a pending account.
// Codes go to the contacts stored on the account, and channels not supplied are left untouched.
func (s *Service) ResendOTP(ctx context.Context, email, phone string) error {
	if email == "" && phone == "" {
		return fmt.Errorf("%w: email or phone is required", ErrInvalidInput)
	}

	user, err := s.findByContact(ctx, email, phone)
	if err != nil {
		return err
	}

	var emailCode, phoneCode string
	if email != "" {
		if emailCode, err = s.newCode(); err != nil {
			return err
		}
	}
	if phone != "" {
		if phoneCode, err = s.newCode(); err != nil {
			return err
		}
	}

	updated, err := s.users.Mutate(ctx, user.ID, func(u *model.User) error {
		if u.Status == model.StatusVerified {
			return ErrAlreadyVerified
		}
		if emailCode != "" {
			u.EmailOTP = s.digest(channelEmail, emailCode)
		}
		if phoneCode != "" {
			u.PhoneOTP = s.digest(channelPhone, phoneCode)
		}
		u.OTPExpiresAt = s.expiry()
		return nil
	})
	if err != nil {
		return s.mutateErr(err, "resend otp")
	}

	if err := s.sendChallenge(ctx, updated.Email, emailCode, updated.Phone, phoneCode); err != nil {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	s.logger.Info("otp resent", zap.String("user_id", updated.ID), zap.Bool("email", emailCode != ""), zap.Bool("phone", phoneCode != ""))
	return nil
}

func (s *Service) mutateErr(err error, op string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, ErrAlreadyVerified), errors.Is(err, ErrNotVerified),
		errors.Is(err, ErrOTPExpired), errors.Is(err, ErrInvalidOTP):
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// Login checks the credentials of a verified account and issues a session token.
// The verification state is only disclosed to callers holding the right password.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("failed to load user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if user.Status != model.StatusVerified {
		return LoginResult{}, ErrNotVerified
	}

	if user.RoleName == "" {
		role, err := s.roles.GetByID(ctx, user.RoleID)
		if err != nil {
			return LoginResult{}, fmt.Errorf("failed to resolve role for user %s: %w", user.ID, err)
		}
		user.RoleName = role.Name
	}

	token, err := s.tokens.SignToken(user.ID, user.RoleName)
	if err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("role", user.RoleName))
	return LoginResult{
		Token:     token,
		Dashboard: DashboardFor(user.RoleName),
		User:      user,
	}, nil
}

// ForgotPassword issues one reset code for a verified account and sends it to each supplied channel
func (s *Service) ForgotPassword(ctx context.Context, email, phone string) error {
	if email == "" && phone == "" {
		return fmt.Errorf("%w: email or phone is required", ErrInvalidInput)
	}

	user, err := s.findByContact(ctx, email, phone)
	if err != nil {
		return err
	}

	code, err := s.newCode()
	if err != nil {
		return err
	}

	updated, err := s.users.Mutate(ctx, user.ID, func(u *model.User) error {
		// a pending account's open challenge is its registration, not a reset
		if u.Status != model.StatusVerified {
			return ErrNotVerified
		}
		if email != "" {
			u.EmailOTP = s.digest(channelEmail, code)
		}
		if phone != "" {
			u.PhoneOTP = s.digest(channelPhone, code)
		}
		u.OTPExpiresAt = s.expiry()
		return nil
	})
	if err != nil {
		return s.mutateErr(err, "issue reset code")
	}

	var emailCode, phoneCode string
	if email != "" {
		emailCode = code
	}
	if phone != "" {
		phoneCode = code
	}
	if err := s.sendChallenge(ctx, updated.Email, emailCode, updated.Phone, phoneCode); err != nil {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	s.logger.Info("password reset requested", zap.String("user_id", updated.ID))
	return nil
}

// ResetPassword replaces the password when the reset code matches the channel it was sent to
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) error {
	if (in.Email == "" && in.Phone == "") || in.OTP == "" || in.NewPassword == "" {
		return fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}

	user, err := s.findByContact(ctx, in.Email, in.Phone)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}

	_, err = s.users.Mutate(ctx, user.ID, func(u *model.User) error {
		if u.Status != model.StatusVerified {
			return ErrNotVerified
		}
		if !u.HasOpenChallenge() || s.now().After(*u.OTPExpiresAt) {
			return ErrOTPExpired
		}
		emailOK := in.Email != "" && matchOTP(u.EmailOTP, channelEmail, in.OTP, s.opts.OTPSalt)
		phoneOK := in.Phone != "" && matchOTP(u.PhoneOTP, channelPhone, in.OTP, s.opts.OTPSalt)
		if !emailOK && !phoneOK {
			return ErrInvalidOTP
		}
		u.PasswordHash = hash
		u.ClearChallenge()
		return nil
	})
	if err != nil {
		return s.mutateErr(err, "reset password")
	}

	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// GetUser returns one account
func (s *Service) GetUser(ctx context.Context, id string) (model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// ListUsers returns all accounts with role names resolved
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser applies an allow-listed profile patch
func (s *Service) UpdateUser(ctx context.Context, id string, patch model.UserPatch) (model.User, error) {
	if patch.IsEmpty() {
		return model.User{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if (patch.Email != nil && *patch.Email == "") || (patch.Phone != nil && *patch.Phone == "") {
		return model.User{}, fmt.Errorf("%w: email and phone cannot be empty", ErrInvalidInput)
	}
	if patch.Gender != nil && !validGender(*patch.Gender) {
		return model.User{}, fmt.Errorf("%w: gender must be male, female or other", ErrInvalidInput)
	}

	user, err := s.users.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return model.User{}, ErrUserNotFound
		case errors.Is(err, repo.ErrDuplicate):
			return model.User{}, ErrAlreadyRegistered
		}
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeleteUser removes an account
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}
