package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopbot/internal/apperr"
	"shopbot/internal/config"
	"shopbot/internal/database/dbtest"
	"shopbot/internal/model"
	"shopbot/internal/sms/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(t *testing.T) (*Service, *mocks.MockSender, *fakeClock) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := config.OTPConfig{TTL: 5 * time.Minute, CodeLength: 4, Secret: "test-secret"}
	return New(dbtest.NewSQLite(t), sender, cfg, WithClock(clock.Now)), sender, clock
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "89161234567", want: "+79161234567"},
		{raw: "+7 (916) 123-45-67", want: "+79161234567"},
		{raw: "9161234567", want: "+9161234567"},
		{raw: "+44 20 7946 0958", want: "+442079460958"},
		{raw: "123", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "телефон", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsCode(t *testing.T) {
	assert.True(t, IsCode("0123"))
	assert.False(t, IsCode(""))
	assert.False(t, IsCode("12a4"))
	assert.False(t, IsCode("12 34"))
}

func TestClampCodeLength(t *testing.T) {
	assert.Equal(t, 4, clampCodeLength(0))
	assert.Equal(t, 6, clampCodeLength(6))
	assert.Equal(t, 8, clampCodeLength(20))
}

func TestRegisterOrTouch(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.User(ctx, 1)
	assert.ErrorIs(t, err, ErrNotRegistered)

	u, err := svc.RegisterOrTouch(ctx, 1, "  Анна ")
	require.NoError(t, err)
	assert.Equal(t, "Анна", u.Name)
	assert.False(t, u.IsVerified)
	assert.Empty(t, u.Phone)

	again, err := svc.RegisterOrTouch(ctx, 1, "Аня")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Аня", again.Name)
}

func TestOTP_RoundTripSucceedsOnce(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.RegisterOrTouch(ctx, 1, "Анна")
	require.NoError(t, err)

	code, err := svc.IssueOTP(ctx, 1, "+79161234567")
	require.NoError(t, err)
	assert.Len(t, code, 4)
	assert.True(t, IsCode(code))

	u, err := svc.User(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.HasPendingOTP())
	assert.NotEqual(t, code, *u.OTPCodeHash, "plaintext is never stored")
	assert.Equal(t, "+79161234567", u.Phone)

	require.NoError(t, svc.VerifyOTP(ctx, 1, code))

	u, err = svc.User(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
	assert.Nil(t, u.OTPCodeHash)
	assert.Nil(t, u.OTPExpiresAt)

	err = svc.VerifyOTP(ctx, 1, code)
	assert.ErrorIs(t, err, ErrNoPendingOTP)
}

func TestOTP_MismatchDoesNotConsume(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.RegisterOrTouch(ctx, 1, "Анна")
	require.NoError(t, err)

	code, err := svc.IssueOTP(ctx, 1, "+79161234567")
	require.NoError(t, err)

	wrong := "0000"
	if code == wrong {
		wrong = "1111"
	}
	assert.ErrorIs(t, svc.VerifyOTP(ctx, 1, wrong), ErrOTPMismatch)
	assert.NoError(t, svc.VerifyOTP(ctx, 1, code))
}

func TestOTP_Expired(t *testing.T) {
	svc, _, clock := newService(t)
	ctx := context.Background()
	_, err := svc.RegisterOrTouch(ctx, 1, "Анна")
	require.NoError(t, err)

	code, err := svc.IssueOTP(ctx, 1, "+79161234567")
	require.NoError(t, err)

	clock.Advance(5*time.Minute + time.Second)
	err = svc.VerifyOTP(ctx, 1, code)
	assert.ErrorIs(t, err, ErrOTPExpired)
	assert.Equal(t, apperr.KindExpired, apperr.KindOf(err))
}

func TestOTP_ReissueReplacesCodeAndResetsVerification(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.RegisterOrTouch(ctx, 1, "Анна")
	require.NoError(t, err)

	first, err := svc.IssueOTP(ctx, 1, "+79161234567")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyOTP(ctx, 1, first))

	second, err := svc.IssueOTP(ctx, 1, "+79997654321")
	require.NoError(t, err)

	u, err := svc.User(ctx, 1)
	require.NoError(t, err)
	assert.False(t, u.IsVerified)
	assert.Equal(t, "+79997654321", u.Phone)
	assert.NoError(t, svc.VerifyOTP(ctx, 1, second))
}

func TestVerifyOTP_UnknownPrincipal(t *testing.T) {
	svc, _, _ := newService(t)
	assert.ErrorIs(t, svc.VerifyOTP(context.Background(), 404, "1234"), ErrNoPendingOTP)
}

func TestBeginPhoneVerification_SendsCode(t *testing.T) {
	svc, sender, _ := newService(t)
	ctx := context.Background()
	_, err := svc.RegisterOrTouch(ctx, 1, "Анна")
	require.NoError(t, err)

	var sent string
	sender.EXPECT().
		Send(gomock.Any(), "+79161234567", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, text string) (bool, error) {
			sent = text
			return true, nil
		})

	phone, err := svc.BeginPhoneVerification(ctx, 1, "8 916 123-45-67")
	require.NoError(t, err)
	assert.Equal(t, "+79161234567", phone)
	require.Contains(t, sent, "Ваш код подтверждения: ")

	code := sent[len("Ваш код подтверждения: "):]
	assert.NoError(t, svc.VerifyOTP(ctx, 1, code))
}

func TestBeginPhoneVerification_Failures(t *testing.T) {
	svc, sender, _ := newService(t)
	ctx := context.Background()
	_, err := svc.RegisterOrTouch(ctx, 1, "Анна")
	require.NoError(t, err)

	_, err = svc.BeginPhoneVerification(ctx, 1, "123")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	_, err = svc.BeginPhoneVerification(ctx, 1, "+79161234567")
	assert.ErrorIs(t, err, ErrSMSFailed)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))

	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("timeout"))
	_, err = svc.BeginPhoneVerification(ctx, 1, "+79161234567")
	assert.ErrorIs(t, err, ErrSMSFailed)
}

func TestAddressBook(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SaveDefaultAddress(ctx, 1, model.Address{Line: "ул. Ленина, 1"})
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = svc.RegisterOrTouch(ctx, 1, "Анна")
	require.NoError(t, err)

	addr, err := svc.DefaultAddress(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, addr)

	_, err = svc.SaveDefaultAddress(ctx, 1, model.Address{Line: "ул"})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	floor := "3"
	saved, err := svc.SaveDefaultAddress(ctx, 1, model.Address{Line: " ул. Ленина, 1 ", Floor: &floor})
	require.NoError(t, err)
	assert.Equal(t, "ул. Ленина, 1", saved.Line)

	profile, err := svc.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Анна", profile.User.Name)
	require.NotNil(t, profile.Address)
	assert.Equal(t, "ул. Ленина, 1", profile.Address.Line)
	require.NotNil(t, profile.Address.Floor)
	assert.Equal(t, "3", *profile.Address.Floor)
}

func TestValidAddressLine(t *testing.T) {
	assert.True(t, ValidAddressLine("Тверь"))
	assert.False(t, ValidAddressLine(" Тве "))
}
