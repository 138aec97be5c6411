package stub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/stub"
)

func TestStore_RegisterVerifyAuthenticate(t *testing.T) {
	store := stub.NewStore()

	code, err := store.Register(stub.Account{Email: "New@Example.com", Role: "buyer"}, "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, code)

	// Unverified accounts authenticate with a distinguishable error.
	_, err = store.Authenticate("new@example.com", "secret123")
	assert.ErrorIs(t, err, stub.ErrUnverifiedEmail)

	_, err = store.Verify("new@example.com", "wrong")
	assert.ErrorIs(t, err, stub.ErrBadCode)

	acc, err := store.Verify("new@example.com", code)
	require.NoError(t, err)
	assert.Equal(t, "BUYER", acc.Role)
	assert.Equal(t, "new@example.com", acc.Email, "emails are stored lowercased")

	got, err := store.Authenticate("new@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, err = store.Authenticate("new@example.com", "wrong")
	assert.ErrorIs(t, err, stub.ErrBadCredentials)
}

func TestStore_RegisterDuplicateVerifiedEmail(t *testing.T) {
	store := stub.NewStore()

	_, err := store.SeedAccount("taken@example.com", "pw123456", "BUYER")
	require.NoError(t, err)

	_, err = store.Register(stub.Account{Email: "taken@example.com", Role: "buyer"}, "pw123456")
	assert.ErrorIs(t, err, stub.ErrEmailExists)
}

func TestStore_CartAndOrderLifecycle(t *testing.T) {
	store := stub.NewStore()

	require.NoError(t, store.AddToCart("b@example.com", "prod-rice-01", 2))
	assert.ErrorIs(t, store.AddToCart("b@example.com", "nope", 1), stub.ErrNotFound)

	lines, total := store.CartLines("b@example.com")
	require.Len(t, lines, 1)
	assert.Equal(t, 700.0, total)

	order, err := store.CreateOrder("b@example.com", "12 Lake Road", "Colombo", "00300", "0771234567", "")
	require.NoError(t, err)
	assert.Equal(t, 900.0, order.TotalAmount, "below the threshold the flat fee applies")
	assert.Equal(t, "PENDING", order.PaymentStatus)

	// The cart survives order creation and empties only on confirmation.
	lines, _ = store.CartLines("b@example.com")
	assert.Len(t, lines, 1)

	require.NoError(t, store.ConfirmPayment(order.ID, "cod_payment"))
	got, ok := store.OrderByID("b@example.com", order.ID)
	require.True(t, ok)
	assert.Equal(t, "COD", got.PaymentStatus)
	assert.Equal(t, "CONFIRMED", got.Status)

	lines, _ = store.CartLines("b@example.com")
	assert.Empty(t, lines)
}

func TestStore_CreateOrderEmptyCart(t *testing.T) {
	store := stub.NewStore()

	_, err := store.CreateOrder("b@example.com", "a", "b", "c", "d", "")
	assert.ErrorIs(t, err, stub.ErrEmptyCart)
}

func TestStore_IntentLifecycle(t *testing.T) {
	store := stub.NewStore()

	require.NoError(t, store.AddToCart("b@example.com", "prod-tea-01", 1))
	order, err := store.CreateOrder("b@example.com", "a", "b", "c", "d", "")
	require.NoError(t, err)

	intent, err := store.CreateIntent(order.ID)
	require.NoError(t, err)
	assert.Contains(t, intent.ClientSecret, intent.ID+"_secret_")
	assert.Equal(t, order.TotalAmount, intent.Amount)

	_, err = store.CreateIntent("no-such-order")
	assert.ErrorIs(t, err, stub.ErrNotFound)

	require.NoError(t, store.MarkIntentSucceeded(intent.ID))
	got, ok := store.IntentByID(intent.ID)
	require.True(t, ok)
	assert.Equal(t, "succeeded", got.Status)
}

func TestStore_PasswordReset(t *testing.T) {
	store := stub.NewStore()

	_, err := store.SeedAccount("b@example.com", "oldpass1", "BUYER")
	require.NoError(t, err)

	token, err := store.CreateResetToken("b@example.com")
	require.NoError(t, err)

	require.NoError(t, store.ResetPassword(token, "newpass1"))

	_, err = store.Authenticate("b@example.com", "newpass1")
	assert.NoError(t, err)

	// Tokens are single use.
	assert.ErrorIs(t, store.ResetPassword(token, "again123"), stub.ErrNotFound)
}
