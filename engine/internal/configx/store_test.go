package configx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	N int
}

func TestStoreAppliesNewSnapshotAndAudits(t *testing.T) {
	s, err := NewStore(sample{N: 1}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), s.Version())

	require.NoError(t, s.Apply(sample{N: 2}))
	require.Equal(t, int64(2), s.Version())
	require.Equal(t, 2, s.Current().N)
	require.Len(t, s.Audit(), 2)
	require.Equal(t, int64(1), s.Audit()[1].Parent)
}

func TestStoreApplyIdenticalSnapshotIsNoChange(t *testing.T) {
	s, err := NewStore(sample{N: 1}, nil)
	require.NoError(t, err)
	require.ErrorIs(t, s.Apply(sample{N: 1}), ErrNoChange)
	require.Equal(t, int64(1), s.Version())
}

func TestStoreRejectsInvalidSnapshot(t *testing.T) {
	validate := func(v sample) error {
		if v.N < 0 {
			return errors.New("N must not be negative")
		}
		return nil
	}
	s, err := NewStore(sample{N: 1}, validate)
	require.NoError(t, err)

	err = s.Apply(sample{N: -1})
	require.Error(t, err)
	require.Equal(t, 1, s.Current().N, "rejected apply must not swap the snapshot")
}

func TestStoreNotifiesListenersOnApply(t *testing.T) {
	s, err := NewStore(sample{N: 1}, nil)
	require.NoError(t, err)

	var events []ChangeEvent
	s.Register(ListenerFunc(func(e ChangeEvent) { events = append(events, e) }))

	require.NoError(t, s.Apply(sample{N: 2}))
	require.Len(t, events, 1)
	require.Equal(t, int64(2), events[0].Version)
}
