package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ridehub/accounts/internal/model"
	"github.com/ridehub/accounts/internal/repo"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	emails     map[string]string
	texts      map[string]string
	emailCalls int
	textCalls  int
	failEmail  error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{emails: map[string]string{}, texts: map[string]string{}}
}

func (d *fakeDispatcher) SendEmailCode(_ context.Context, address, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emailCalls++
	if d.failEmail != nil {
		return d.failEmail
	}
	d.emails[address] = code
	return nil
}

func (d *fakeDispatcher) SendTextCode(_ context.Context, number, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.textCalls++
	d.texts[number] = code
	return nil
}

type testEnv struct {
	svc    *Service
	store  *repo.MemoryStore
	notify *fakeDispatcher
	tokens *JWTService
	clock  time.Time
}

func newTestEnv(t *testing.T, otpEnabled bool) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  repo.NewMemoryStore(),
		notify: newFakeDispatcher(),
		tokens: NewJWTService("test-secret", 0),
		clock:  time.Now(),
	}
	env.svc = NewService(
		env.store,
		env.store.Roles(),
		NewBcryptHasher(bcrypt.MinCost),
		env.tokens,
		env.notify,
		zap.NewNop(),
		Options{OTPEnabled: otpEnabled, OTPSalt: "test-salt"},
	)
	env.svc.now = func() time.Time { return env.clock }
	return env
}

func (e *testEnv) register(t *testing.T, email, password, phone, role string) model.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), RegisterInput{
		Name:     "Test User",
		Email:    email,
		Phone:    phone,
		Password: password,
		RoleName: role,
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) stored(t *testing.T, email string) model.User {
	t.Helper()
	u, err := e.store.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

func TestRegister_CreatesPendingUserAndDispatchesCodes(t *testing.T) {
	env := newTestEnv(t, true)

	u := env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)
	assert.Equal(t, model.StatusPending, u.Status)
	assert.Equal(t, model.RoleRider, u.RoleName)
	assert.NotEqual(t, "secret", u.PasswordHash)

	emailCode, phoneCode := env.notify.emails["a@x.com"], env.notify.texts["555-0100"]
	assert.Len(t, emailCode, 6)
	assert.Len(t, phoneCode, 6)

	stored := env.stored(t, "a@x.com")
	assert.NotEqual(t, emailCode, stored.EmailOTP, "codes are stored as digests")
	assert.NotEqual(t, phoneCode, stored.PhoneOTP)
	require.NotNil(t, stored.OTPExpiresAt)
	assert.Equal(t, env.clock.Add(DefaultOTPTTL), *stored.OTPExpiresAt)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, RegisterInput{Email: "a@x.com", Phone: "555-0100", RoleName: model.RoleRider})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.Register(ctx, RegisterInput{Email: "a@x.com", Phone: "555-0100", Password: "secret"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.Register(ctx, RegisterInput{Email: "a@x.com", Phone: "555-0100", Password: "secret", RoleName: model.RoleRider, Gender: "robot"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.Register(ctx, RegisterInput{Email: "a@x.com", Phone: "555-0100", Password: "secret", RoleName: "pilot"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = env.svc.Register(ctx, RegisterInput{Email: "a@x.com", Phone: "555-0100", Password: "secret", RoleID: "missing"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	users, err := env.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Zero(t, env.notify.emailCalls)
}

func TestRegister_ByRoleID(t *testing.T) {
	env := newTestEnv(t, true)
	driver, err := env.store.Roles().GetByName(context.Background(), model.RoleDriver)
	require.NoError(t, err)

	u, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "d@x.com", Phone: "555-0200", Password: "secret", RoleID: driver.ID, Gender: "female",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleDriver, u.RoleName)
	assert.Equal(t, "female", u.Gender)
}

func TestRegister_RejectsDuplicateContact(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	_, err := env.svc.Register(ctx, RegisterInput{Email: "a@x.com", Phone: "555-0999", Password: "p", RoleName: model.RoleRider})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	_, err = env.svc.Register(ctx, RegisterInput{Email: "b@x.com", Phone: "555-0100", Password: "p", RoleName: model.RoleRider})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	users, err := env.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRegister_DispatchFailureRemovesUser(t *testing.T) {
	env := newTestEnv(t, true)
	env.notify.failEmail = errors.New("smtp down")

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "a@x.com", Phone: "555-0100", Password: "secret", RoleName: model.RoleRider,
	})
	assert.ErrorIs(t, err, ErrDispatchFailed)

	_, err = env.store.GetByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	env.notify.failEmail = nil
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)
}

func TestRegister_WithoutOTPCreatesVerifiedUser(t *testing.T) {
	env := newTestEnv(t, false)

	u := env.register(t, "a@x.com", "secret", "555-0100", model.RoleAdmin)
	assert.Equal(t, model.StatusVerified, u.Status)
	assert.False(t, u.HasOpenChallenge())
	assert.Zero(t, env.notify.emailCalls)
	assert.Zero(t, env.notify.textCalls)

	res, err := env.svc.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "/admin/dashboard", res.Dashboard)
}

func TestVerifyThenLogin(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	_, err := env.svc.Login(ctx, "a@x.com", "secret")
	assert.ErrorIs(t, err, ErrNotVerified)

	require.NoError(t, env.svc.Verify(ctx, "a@x.com", env.notify.emails["a@x.com"], env.notify.texts["555-0100"]))

	stored := env.stored(t, "a@x.com")
	assert.Equal(t, model.StatusVerified, stored.Status)
	assert.Empty(t, stored.EmailOTP)
	assert.Empty(t, stored.PhoneOTP)
	assert.Nil(t, stored.OTPExpiresAt)

	res, err := env.svc.Login(ctx, "a@x.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "/rider/dashboard", res.Dashboard)
	assert.Equal(t, stored.ID, res.User.ID)

	claims, err := env.tokens.VerifyToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, claims.UserID())
	assert.Equal(t, model.RoleRider, claims.Role)

	_, err = env.svc.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, "nobody@x.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.svc.Verify(ctx, "a@x.com", "123456", "123456")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestLogin_UnverifiedWithWrongPasswordIsGeneric(t *testing.T) {
	env := newTestEnv(t, true)
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	_, err := env.svc.Login(context.Background(), "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnresolvableRoleIssuesNoToken(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	hash, err := env.svc.hasher.Hash("secret")
	require.NoError(t, err)
	_, err = env.store.Create(ctx, model.User{
		ID:           "orphan",
		Email:        "a@x.com",
		Phone:        "555-0100",
		PasswordHash: hash,
		RoleID:       "retired-role",
		Status:       model.StatusVerified,
		CreatedAt:    env.clock,
		UpdatedAt:    env.clock,
	})
	require.NoError(t, err)

	res, err := env.svc.Login(ctx, "a@x.com", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, res.Token)
}

func TestVerify_AfterContactEditStillSucceeds(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	u := env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)
	emailCode, phoneCode := env.notify.emails["a@x.com"], env.notify.texts["555-0100"]

	email, phone := "b@x.com", "555-0199"
	_, err := env.svc.UpdateUser(ctx, u.ID, model.UserPatch{Email: &email, Phone: &phone})
	require.NoError(t, err)

	require.NoError(t, env.svc.Verify(ctx, "b@x.com", emailCode, phoneCode))

	stored, err := env.svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, stored.Status)
	assert.False(t, stored.HasOpenChallenge())
}

func TestVerify_MismatchRemovesUser(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	wrong := "000000"
	if env.notify.texts["555-0100"] == wrong {
		wrong = "000001"
	}
	err := env.svc.Verify(ctx, "a@x.com", env.notify.emails["a@x.com"], wrong)
	assert.ErrorIs(t, err, ErrOTPMismatch)

	err = env.svc.Verify(ctx, "a@x.com", env.notify.emails["a@x.com"], env.notify.texts["555-0100"])
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = env.svc.Login(ctx, "a@x.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerify_SwappedCodesAreRejected(t *testing.T) {
	env := newTestEnv(t, true)
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)
	emailCode, phoneCode := env.notify.emails["a@x.com"], env.notify.texts["555-0100"]
	if emailCode == phoneCode {
		t.Skip("codes collided")
	}

	err := env.svc.Verify(context.Background(), "a@x.com", phoneCode, emailCode)
	assert.ErrorIs(t, err, ErrOTPMismatch)
}

func TestVerify_ExpiredRemovesUserRegardlessOfCodes(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	env.clock = env.clock.Add(DefaultOTPTTL + time.Second)
	err := env.svc.Verify(ctx, "a@x.com", env.notify.emails["a@x.com"], env.notify.texts["555-0100"])
	assert.ErrorIs(t, err, ErrOTPExpired)

	_, err = env.store.GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestVerify_Validation(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	assert.ErrorIs(t, env.svc.Verify(ctx, "", "1", "2"), ErrInvalidInput)
	assert.ErrorIs(t, env.svc.Verify(ctx, "a@x.com", "", "2"), ErrInvalidInput)
	assert.ErrorIs(t, env.svc.Verify(ctx, "nobody@x.com", "1", "2"), ErrUserNotFound)
}

func TestResendOTP_OnlyTouchesSuppliedChannel(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)
	before := env.stored(t, "a@x.com")
	phoneCode := env.notify.texts["555-0100"]

	env.clock = env.clock.Add(5 * time.Minute)
	require.NoError(t, env.svc.ResendOTP(ctx, "a@x.com", ""))

	after := env.stored(t, "a@x.com")
	assert.Equal(t, before.PhoneOTP, after.PhoneOTP)
	assert.Equal(t, env.clock.Add(DefaultOTPTTL), *after.OTPExpiresAt)
	assert.Equal(t, 2, env.notify.emailCalls)
	assert.Equal(t, 1, env.notify.textCalls)

	require.NoError(t, env.svc.Verify(ctx, "a@x.com", env.notify.emails["a@x.com"], phoneCode))
}

func TestResendOTP_Errors(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	assert.ErrorIs(t, env.svc.ResendOTP(ctx, "", ""), ErrInvalidInput)
	assert.ErrorIs(t, env.svc.ResendOTP(ctx, "nobody@x.com", ""), ErrUserNotFound)
	assert.ErrorIs(t, env.svc.ResendOTP(ctx, "", "555-0100"), ErrAlreadyVerified)
	assert.Zero(t, env.notify.textCalls)
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleDriver)

	require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.com", "555-0100"))
	code := env.notify.emails["a@x.com"]
	assert.Equal(t, code, env.notify.texts["555-0100"], "one shared code per reset")

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	err := env.svc.ResetPassword(ctx, ResetInput{Email: "a@x.com", OTP: wrong, NewPassword: "new-secret"})
	assert.ErrorIs(t, err, ErrInvalidOTP)

	require.NoError(t, env.svc.ResetPassword(ctx, ResetInput{Phone: "555-0100", OTP: code, NewPassword: "new-secret"}))

	stored := env.stored(t, "a@x.com")
	assert.False(t, stored.HasOpenChallenge())
	assert.Equal(t, model.StatusVerified, stored.Status)

	_, err = env.svc.Login(ctx, "a@x.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, "a@x.com", "new-secret")
	require.NoError(t, err)

	// the code is single-use
	err = env.svc.ResetPassword(ctx, ResetInput{Email: "a@x.com", OTP: code, NewPassword: "third"})
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestResetPassword_ExpiredCodeLeavesPasswordUnchanged(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.com", ""))
	assert.Zero(t, env.notify.textCalls)
	code := env.notify.emails["a@x.com"]

	env.clock = env.clock.Add(DefaultOTPTTL + time.Second)
	err := env.svc.ResetPassword(ctx, ResetInput{Email: "a@x.com", OTP: code, NewPassword: "new-secret"})
	assert.ErrorIs(t, err, ErrOTPExpired)

	_, err = env.svc.Login(ctx, "a@x.com", "secret")
	assert.NoError(t, err)
}

func TestResetPassword_CodeBoundToSuppliedChannel(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	require.NoError(t, env.svc.ForgotPassword(ctx, "a@x.com", ""))
	code := env.notify.emails["a@x.com"]

	err := env.svc.ResetPassword(ctx, ResetInput{Phone: "555-0100", OTP: code, NewPassword: "new-secret"})
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestForgotAndReset_RequireVerifiedAccount(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)
	emailCode := env.notify.emails["a@x.com"]
	before := env.stored(t, "a@x.com")

	err := env.svc.ResetPassword(ctx, ResetInput{Email: "a@x.com", OTP: emailCode, NewPassword: "new-secret"})
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.ErrorIs(t, env.svc.ForgotPassword(ctx, "a@x.com", ""), ErrNotVerified)
	assert.Equal(t, 1, env.notify.emailCalls)

	after := env.stored(t, "a@x.com")
	assert.Equal(t, model.StatusPending, after.Status)
	assert.Equal(t, before.EmailOTP, after.EmailOTP)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	require.True(t, after.HasOpenChallenge())

	// the registration challenge is still purged once it lapses
	sw := NewSweeper(env.store, time.Minute, zap.NewNop())
	sw.now = func() time.Time { return env.clock.Add(24 * time.Hour) }
	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestForgotAndReset_Errors(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	assert.ErrorIs(t, env.svc.ForgotPassword(ctx, "", ""), ErrInvalidInput)
	assert.ErrorIs(t, env.svc.ForgotPassword(ctx, "nobody@x.com", ""), ErrUserNotFound)
	assert.ErrorIs(t, env.svc.ResetPassword(ctx, ResetInput{Email: "a@x.com", OTP: "123456"}), ErrInvalidInput)
	assert.ErrorIs(t, env.svc.ResetPassword(ctx, ResetInput{Email: "nobody@x.com", OTP: "123456", NewPassword: "x"}), ErrUserNotFound)

	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)
	err := env.svc.ResetPassword(ctx, ResetInput{Email: "a@x.com", OTP: "123456", NewPassword: "x"})
	assert.ErrorIs(t, err, ErrOTPExpired, "no reset was requested")
}

func TestProfileOperations(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	a := env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)
	env.clock = env.clock.Add(time.Second)
	env.register(t, "b@x.com", "secret", "555-0200", model.RoleDriver)

	first, err := env.svc.GetUser(ctx, a.ID)
	require.NoError(t, err)
	second, err := env.svc.GetUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	users, err := env.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, model.RoleDriver, users[1].RoleName)

	name := "Alice"
	updated, err := env.svc.UpdateUser(ctx, a.ID, model.UserPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, first.PasswordHash, updated.PasswordHash)

	taken := "b@x.com"
	_, err = env.svc.UpdateUser(ctx, a.ID, model.UserPatch{Email: &taken})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	empty := ""
	_, err = env.svc.UpdateUser(ctx, a.ID, model.UserPatch{Phone: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.UpdateUser(ctx, a.ID, model.UserPatch{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.UpdateUser(ctx, "missing", model.UserPatch{Name: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, env.svc.DeleteUser(ctx, a.ID))
	assert.ErrorIs(t, env.svc.DeleteUser(ctx, a.ID), ErrUserNotFound)
	_, err = env.svc.GetUser(ctx, a.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSweeper_PurgesExpiredPending(t *testing.T) {
	env := newTestEnv(t, true)
	env.register(t, "a@x.com", "secret", "555-0100", model.RoleRider)

	sw := NewSweeper(env.store, time.Minute, zap.NewNop())
	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	sw.now = func() time.Time { return env.clock.Add(DefaultOTPTTL + time.Second) }
	n, err = sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(repo.NewMemoryStore(), time.Millisecond, zap.NewNop()).Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestDashboardFor(t *testing.T) {
	assert.Equal(t, "/rider/dashboard", DashboardFor(model.RoleRider))
	assert.Equal(t, "/driver/dashboard", DashboardFor(model.RoleDriver))
	assert.Equal(t, "/admin/dashboard", DashboardFor(model.RoleAdmin))
	assert.Equal(t, "", DashboardFor("pilot"))
}
