package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pfmp/apperr"
	"pfmp/database/dbtest"
	"pfmp/models"
	"pfmp/services/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

type fixture struct {
	db     *gorm.DB
	gate   *Gate
	mailer *fakeMailer
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		db:     db,
		mailer: &fakeMailer{},
		now:    time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	f.gate = NewGate(db, f.mailer, audit.NewLog(db), 10*time.Minute)
	f.gate.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) lastCode(t *testing.T, email string) string {
	t.Helper()
	var rec models.OTP
	require.NoError(t, f.db.Where("email = ?", email).Order("id desc").First(&rec).Error)
	return rec.Code
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.OTP{}).Count(&n).Error)
	return n
}

func TestCodeValidatesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.gate.RequestCode(ctx, SendRequest{Email: "A@B.com ", Purpose: models.OTPPurposeGeneric})
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, f.now.Add(10*time.Minute), res.ExpiresAt)
	assert.Equal(t, []string{"a@b.com"}, f.mailer.sent)

	code := f.lastCode(t, "a@b.com")
	assert.Len(t, code, 4)

	got, err := f.gate.VerifyCode(ctx, VerifyRequest{Email: "a@b.com", Code: code, Purpose: models.OTPPurposeGeneric})
	require.NoError(t, err)
	assert.Equal(t, models.OTPPurposeGeneric, got.Purpose)

	_, err = f.gate.VerifyCode(ctx, VerifyRequest{Email: "a@b.com", Code: code, Purpose: models.OTPPurposeGeneric})
	assert.ErrorIs(t, err, apperr.ErrInvalidCode)
}

func TestExpiredCodeIsStillDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.RequestCode(ctx, SendRequest{Email: "a@b.com", Purpose: models.OTPPurposeGeneric})
	require.NoError(t, err)
	code := f.lastCode(t, "a@b.com")

	f.now = f.now.Add(10 * time.Minute)
	_, err = f.gate.VerifyCode(ctx, VerifyRequest{Email: "a@b.com", Code: code})
	assert.ErrorIs(t, err, apperr.ErrCodeExpired)
	assert.Zero(t, f.count(t))

	_, err = f.gate.VerifyCode(ctx, VerifyRequest{Email: "a@b.com", Code: code})
	assert.ErrorIs(t, err, apperr.ErrInvalidCode)
}

func TestSecondActivationCodePurgesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.RequestCode(ctx, SendRequest{Email: "a@b.com", Purpose: models.OTPPurposeActivation})
	require.NoError(t, err)
	first := f.lastCode(t, "a@b.com")

	f.now = f.now.Add(time.Minute)
	_, err = f.gate.RequestCode(ctx, SendRequest{Email: "a@b.com", Purpose: models.OTPPurposeActivation})
	require.NoError(t, err)
	second := f.lastCode(t, "a@b.com")
	require.Equal(t, int64(2), f.count(t))

	got, err := f.gate.VerifyCode(ctx, VerifyRequest{Email: "a@b.com", Code: second, Purpose: models.OTPPurposeActivation})
	require.NoError(t, err)
	assert.Equal(t, models.OTPPurposeActivation, got.Purpose)

	assert.Zero(t, f.count(t))
	for _, code := range []string{first, second} {
		_, err = f.gate.VerifyCode(ctx, VerifyRequest{Email: "a@b.com", Code: code, Purpose: models.OTPPurposeActivation})
		assert.ErrorIs(t, err, apperr.ErrInvalidCode)
	}
}

func TestDuplicateMatchesAreConsumedTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expiry := f.now.Add(10 * time.Minute)
	require.NoError(t, f.db.Create(&[]models.OTP{
		{Email: "a@b.com", Code: "4321", Purpose: models.OTPPurposeActivation, ExpiresAt: f.now.Add(-time.Minute)},
		{Email: "a@b.com", Code: "4321", Purpose: models.OTPPurposeActivation, ExpiresAt: expiry},
		{Email: "c@d.com", Code: "4321", Purpose: models.OTPPurposeActivation, ExpiresAt: expiry},
	}).Error)

	_, err := f.gate.VerifyCode(ctx, VerifyRequest{Email: "a@b.com", Code: "4321"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.count(t))
}

func TestConcurrentVerifyHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.RequestCode(ctx, SendRequest{Email: "a@b.com", Purpose: models.OTPPurposeGeneric})
	require.NoError(t, err)
	code := f.lastCode(t, "a@b.com")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gate.VerifyCode(ctx, VerifyRequest{Email: "a@b.com", Code: code})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrInvalidCode)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestDeliveryFailurePolicy(t *testing.T) {
	tests := []struct {
		name    string
		purpose models.OTPPurpose
		wantErr bool
	}{
		{"activation only warns", models.OTPPurposeActivation, false},
		{"signature is blocking", models.OTPPurposeSignature, true},
		{"generic is blocking", models.OTPPurposeGeneric, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mailer.err = errors.New("mailbox unavailable")

			res, err := f.gate.RequestCode(context.Background(), SendRequest{Email: "a@b.com", Purpose: tt.purpose, ConventionID: "c1"})
			require.NotNil(t, res)
			assert.False(t, res.Delivered)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrDeliveryFailure)
				return
			}
			require.NoError(t, err)

			_, err = f.gate.VerifyCode(context.Background(), VerifyRequest{Email: "a@b.com", Code: f.lastCode(t, "a@b.com")})
			assert.NoError(t, err)
		})
	}
}

func TestSignatureCodeAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.RequestCode(ctx, SendRequest{Email: "tutor@acme.fr", Purpose: models.OTPPurposeSignature, ConventionID: "c1", IP: "10.0.0.1"})
	require.NoError(t, err)

	// bound to its convention
	_, err = f.gate.VerifyCode(ctx, VerifyRequest{Email: "tutor@acme.fr", Code: f.lastCode(t, "tutor@acme.fr"), ConventionID: "c2"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCode)

	res, err := f.gate.VerifyCode(ctx, VerifyRequest{
		Email:        "tutor@acme.fr",
		Code:         f.lastCode(t, "tutor@acme.fr"),
		Purpose:      models.OTPPurposeSignature,
		ConventionID: "c1",
		IP:           "10.0.0.1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.AuditLog)
	assert.Equal(t, models.AuditOTPValidated, res.AuditLog.Action)
	assert.Equal(t, "tutor@acme.fr", res.AuditLog.ActorEmail)

	rows, err := audit.NewLog(f.db).List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.AuditOTPSent, rows[0].Action)
	assert.Equal(t, models.AuditOTPValidated, rows[1].Action)
}

func TestSignatureCodeAuditedWithoutConventionInRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.RequestCode(ctx, SendRequest{Email: "tutor@acme.fr", Purpose: models.OTPPurposeSignature, ConventionID: "c1", IP: "10.0.0.1"})
	require.NoError(t, err)

	res, err := f.gate.VerifyCode(ctx, VerifyRequest{
		Email:   "tutor@acme.fr",
		Code:    f.lastCode(t, "tutor@acme.fr"),
		Purpose: models.OTPPurposeSignature,
		IP:      "10.0.0.1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OTPPurposeSignature, res.Purpose)
	require.NotNil(t, res.AuditLog)
	assert.Equal(t, "c1", res.AuditLog.ConventionID)

	rows, err := audit.NewLog(f.db).List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.AuditOTPSent, rows[0].Action)
	assert.Equal(t, models.AuditOTPValidated, rows[1].Action)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.VerifyCode(context.Background(), VerifyRequest{Email: "a@b.com", Code: "12"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.gate.RequestCode(context.Background(), SendRequest{Email: "a@b.com", Purpose: "payment"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&[]models.OTP{
		{Email: "old@b.com", Code: "1111", Purpose: models.OTPPurposeGeneric, ExpiresAt: f.now.Add(-48 * time.Hour)},
		{Email: "new@b.com", Code: "2222", Purpose: models.OTPPurposeGeneric, ExpiresAt: f.now.Add(time.Minute)},
	}).Error)

	n, err := f.gate.PurgeExpired(context.Background(), f.now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), f.count(t))
}
