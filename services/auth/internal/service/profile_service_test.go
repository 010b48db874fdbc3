package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/carbonmrv/pkg/events"
	"github.com/diagnosis/carbonmrv/services/auth/internal/domain"
)

func ptr[T any](v T) *T { return &v }

// registeredFarmer signs a farmer up through OTP with 10 acres and two
// practices, an estimated income of 4860.
func registeredFarmer(t *testing.T, h *harness, email string) *domain.AuthResult {
	t.Helper()
	code := issue(t, h, email)
	res, err := h.otp.Verify(context.Background(), &domain.VerifyOTPRequest{
		Email: email,
		OTP:   code,
		RegistrationData: &domain.RegistrationData{
			LandSize:             ptr(10.0),
			LandUnit:             "acres",
			SustainablePractices: []string{"agroforestry", "composting"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4860), res.User.Farmer.EstimatedIncome)
	return res
}

func TestProfile_PhoneOnlyKeepsIncome(t *testing.T) {
	h := newHarness(t)
	res := registeredFarmer(t, h, "phone@example.com")

	f, err := h.profile.Update(context.Background(), res.Token, &domain.ProfileUpdate{Phone: ptr(" 98765 43210 ")})
	require.NoError(t, err)
	assert.Equal(t, int64(4860), f.EstimatedIncome)
	assert.NotEmpty(t, f.Phone)

	evt, ok := h.bus.lastPayload(events.FarmerProfileUpdated).(events.FarmerProfileUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"phone"}, evt.Changes)
}

func TestProfile_LandSizeRecomputesIncome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := registeredFarmer(t, h, "land2@example.com")

	f, err := h.profile.Update(ctx, res.Token, &domain.ProfileUpdate{LandSize: ptr(20.0)})
	require.NoError(t, err)
	assert.Equal(t, int64(9720), f.EstimatedIncome)

	// The same token sees the change.
	user, err := h.sessions.Resolve(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(9720), user.Farmer.EstimatedIncome)
}

func TestProfile_AdminTokenIsForbidden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.admin.Login(ctx, &domain.AdminLoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	require.NoError(t, err)

	_, err = h.profile.Update(ctx, login.Token, &domain.ProfileUpdate{Name: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestProfile_Unauthenticated(t *testing.T) {
	h := newHarness(t)

	_, err := h.profile.Update(context.Background(), "bogus", &domain.ProfileUpdate{Name: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestProfile_InvalidUpdate(t *testing.T) {
	h := newHarness(t)
	res := registeredFarmer(t, h, "bad@example.com")

	_, err := h.profile.Update(context.Background(), res.Token, &domain.ProfileUpdate{LandSize: ptr(-1.0)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, h.bus.count(events.FarmerProfileUpdated))
}
