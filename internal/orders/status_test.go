package orders

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransition(t *testing.T) {
	all := []Status{StatusPending, StatusPreparing, StatusDelivered, StatusCancelled}
	legal := map[[2]Status]bool{
		{StatusPending, StatusPreparing}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusPreparing, StatusDelivered}: true,
	}

	for _, from := range all {
		for _, to := range all {
			err := CheckTransition(from, to)
			switch {
			case legal[[2]Status{from, to}]:
				assert.NoError(t, err, "%s -> %s", from, to)
			case from.Terminal():
				assert.ErrorIs(t, err, ErrTerminalState, "%s -> %s", from, to)
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			default:
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
				assert.NotErrorIs(t, err, ErrTerminalState, "%s -> %s", from, to)
			}
		}
	}

	assert.ErrorIs(t, CheckTransition(0, StatusPending), ErrInvalidTransition)
	assert.ErrorIs(t, CheckTransition(StatusPending, Status(42)), ErrInvalidTransition)
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"Pending":   StatusPending,
		"preparing": StatusPreparing,
		"DELIVERED": StatusDelivered,
		"cancelled": StatusCancelled,
		"Canceled":  StatusCancelled,
	} {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStatus("shipped")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Status `json:"s"`
	}{StatusPreparing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"Preparing"}`, string(b))

	var out struct {
		S Status `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"delivered"}`), &out))
	assert.Equal(t, StatusDelivered, out.S)

	_, err = json.Marshal(struct{ S Status }{0})
	assert.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ErrItemNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrOrderNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrRoleForbidden, ErrForbidden)
	assert.ErrorIs(t, ErrEmptyOrder, ErrInvalidInput)
	assert.ErrorIs(t, ErrInvalidQuantity, ErrInvalidInput)
	assert.ErrorIs(t, ErrTerminalState, ErrInvalidTransition)
	assert.ErrorIs(t, &StockError{ItemID: "a"}, ErrInsufficientStock)

	assert.True(t, Retryable(ErrContention))
	assert.False(t, Retryable(ErrInsufficientStock))
	assert.False(t, Retryable(ErrInvariantViolation))
}

func TestItemInputValidate(t *testing.T) {
	ok := ItemInput{Name: "Coke Zero", PriceCents: 200, Stock: 0}
	assert.NoError(t, ok.Validate())

	long := make([]rune, MaxItemNameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	for name, in := range map[string]ItemInput{
		"blank name":     {Name: "  ", PriceCents: 200},
		"long name":      {Name: string(long), PriceCents: 200},
		"zero price":     {Name: "x", PriceCents: 0},
		"negative stock": {Name: "x", PriceCents: 1, Stock: -1},
	} {
		assert.ErrorIs(t, in.Validate(), ErrInvalidInput, name)
	}
}
