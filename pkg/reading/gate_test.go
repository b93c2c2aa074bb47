package reading_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/arcana/pkg/reading"
)

type brokenFlags struct{}

func (brokenFlags) HasFlag(context.Context, string) (bool, error) {
	return false, errors.New("flag store down")
}
func (brokenFlags) SetFlag(context.Context, string) error { return errors.New("flag store down") }

func TestGuestGate_OneFreeReading(t *testing.T) {
	f := newFixture(t)

	first := f.session(t, reading.NewGuestGate(f.store, "guest-1"), upright)
	require.NoError(t, first.ChooseGeneral())
	pickThree(t, first)
	_, err := first.Submit(context.Background())
	require.NoError(t, err)

	done, err := f.store.HasFlag(context.Background(), reading.GuestFlagPrefix+"guest-1")
	require.NoError(t, err)
	assert.True(t, done)

	second := f.session(t, reading.NewGuestGate(f.store, "guest-1"), upright)
	require.NoError(t, second.ChooseGeneral())
	pickThree(t, second)
	_, err = second.Submit(context.Background())
	refusal, ok := reading.IsRefusal(err)
	require.True(t, ok)
	assert.Equal(t, reading.RefusalSignup, refusal.Reason)
	assert.Equal(t, 1, f.gen.Calls())

	other := reading.NewGuestGate(f.store, "guest-2")
	assert.NoError(t, other.Check(context.Background()))
}

func TestGuestGate_StoreFailure(t *testing.T) {
	gate := reading.NewGuestGate(brokenFlags{}, "g")
	err := gate.Check(context.Background())
	require.Error(t, err)
	_, ok := reading.IsRefusal(err)
	assert.False(t, ok)
}

func TestReader_RecordFailureDoesNotFailReading(t *testing.T) {
	f := newFixture(t)
	gate := &recordFails{}
	r := reading.NewReader(f.gen, nil)

	cards := [3]reading.DrawnCard{card(t, "The Fool", false), card(t, "The Tower", false), card(t, "The Star", false)}
	got, err := r.Perform(context.Background(), gate, "", cards)
	require.NoError(t, err)
	assert.True(t, got.Structured)
	assert.True(t, gate.recorded)
}

type recordFails struct{ recorded bool }

func (g *recordFails) Check(context.Context) error { return nil }
func (g *recordFails) Record(context.Context) error {
	g.recorded = true
	return errors.New("write failed")
}
