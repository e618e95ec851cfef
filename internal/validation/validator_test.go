package validation_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signage-server/signage-gateway-pro/internal/validation"
)

type deviceForm struct {
	IMEI string `validate:"required,imei"`
	Name string `validate:"required,min=3,max=10"`
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

func TestValidate_Device(t *testing.T) {
	v := validation.NewValidator()

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, v.Validate(&deviceForm{IMEI: "358276051111111", Name: "stop 12"}))
	})

	t.Run("missing IMEI", func(t *testing.T) {
		err := v.Validate(&deviceForm{Name: "stop 12"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "IMEI")
	})

	t.Run("IMEI too short", func(t *testing.T) {
		err := v.Validate(&deviceForm{IMEI: "1234567890123", Name: "stop 12"})
		require.Error(t, err)
	})

	t.Run("IMEI too long", func(t *testing.T) {
		err := v.Validate(&deviceForm{IMEI: "12345678901234567", Name: "stop 12"})
		require.Error(t, err)
	})

	t.Run("IMEI with letters", func(t *testing.T) {
		err := v.Validate(&deviceForm{IMEI: "35827605111111a", Name: "stop 12"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "digits")
	})

	t.Run("name too short", func(t *testing.T) {
		require.Error(t, v.Validate(&deviceForm{IMEI: "358276051111111", Name: "ab"}))
	})

	t.Run("name too long", func(t *testing.T) {
		require.Error(t, v.Validate(&deviceForm{IMEI: "358276051111111", Name: "a very long device name"}))
	})
}

func TestValidate_Login(t *testing.T) {
	v := validation.NewValidator()

	require.NoError(t, v.Validate(&loginForm{Email: "ops@example.com", Password: "secret-password"}))

	err := v.Validate(&loginForm{Email: "not-an-email", Password: "secret-password"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "email")

	require.Error(t, v.Validate(&loginForm{Email: "ops@example.com", Password: "short"}))
}

func TestValidate_NonStruct(t *testing.T) {
	v := validation.NewValidator()
	require.Error(t, v.Validate("not a struct"))
}
