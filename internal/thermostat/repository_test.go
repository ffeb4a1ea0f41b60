package thermostat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

func TestSQLiteRepositorySaveAndGet(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := t.Context()

	mode := eqiva.ModeManual | eqiva.ModeLocked
	valve := uint8(40)
	temp := 21.5
	seen := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

	in := &Thermostat{
		Address:        addrKitchen,
		Alias:          "kitchen",
		Name:           "CC-RT-BLE",
		Vendor:         "eQ-3",
		Serial:         "OEQ1234567",
		Firmware:       1.46,
		Mode:           &mode,
		Valve:          &valve,
		Temperature:    &temp,
		State:          []byte(`{"mac":"00:1A:22:0A:0B:01"}`),
		StateUpdatedAt: &seen,
		LastSeen:       &seen,
	}
	require.NoError(t, repo.Save(ctx, in))
	assert.False(t, in.CreatedAt.IsZero())

	got, err := repo.Get(ctx, addrKitchen)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", got.Alias)
	assert.Equal(t, "OEQ1234567", got.Serial)
	assert.InDelta(t, 1.46, got.Firmware, 0.001)
	require.NotNil(t, got.Mode)
	assert.Equal(t, mode, *got.Mode)
	require.NotNil(t, got.Valve)
	assert.Equal(t, uint8(40), *got.Valve)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 21.5, *got.Temperature, 0.001)
	assert.JSONEq(t, `{"mac":"00:1A:22:0A:0B:01"}`, string(got.State))
	require.NotNil(t, got.LastSeen)
	assert.True(t, seen.Equal(*got.LastSeen))
}

func TestSQLiteRepositoryUpsertKeepsCreatedAt(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := t.Context()

	first := &Thermostat{Address: addrKitchen, Alias: "kitchen"}
	require.NoError(t, repo.Save(ctx, first))

	stored, err := repo.Get(ctx, addrKitchen)
	require.NoError(t, err)
	stored.Alias = "kitchen radiator"
	require.NoError(t, repo.Save(ctx, stored))

	got, err := repo.Get(ctx, addrKitchen)
	require.NoError(t, err)
	assert.Equal(t, "kitchen radiator", got.Alias)
	assert.True(t, first.CreatedAt.Truncate(time.Second).Equal(got.CreatedAt))
	assert.Nil(t, got.Mode)
	assert.Nil(t, got.State)
}

func TestSQLiteRepositoryList(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := t.Context()

	require.NoError(t, repo.Save(ctx, &Thermostat{Address: addrOffice}))
	require.NoError(t, repo.Save(ctx, &Thermostat{Address: addrKitchen}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, addrKitchen, list[0].Address)
	assert.Equal(t, addrOffice, list[1].Address)
}

func TestSQLiteRepositoryRejectsForeignAddress(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))

	err := repo.Save(t.Context(), &Thermostat{Address: "AA:BB:CC:DD:EE:FF"})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSQLiteRepositoryNotFound(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := t.Context()

	_, err := repo.Get(ctx, addrKitchen)
	assert.True(t, errors.Is(err, ErrThermostatNotFound))

	err = repo.Delete(ctx, addrKitchen)
	assert.ErrorIs(t, err, ErrThermostatNotFound)
}

func TestSQLiteRepositoryDelete(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := t.Context()

	require.NoError(t, repo.Save(ctx, &Thermostat{Address: addrKitchen}))
	require.NoError(t, repo.Delete(ctx, addrKitchen))

	_, err := repo.Get(ctx, addrKitchen)
	assert.ErrorIs(t, err, ErrThermostatNotFound)
}
