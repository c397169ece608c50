package live

import (
	"sync"
	"testing"
	"time"

	"github.com/Gamemanuel/BathPass/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves a mutable authoritative state and counts fetches.
type fakeFetcher struct {
	mu      sync.Mutex
	state   State
	fetches int
}

func (f *fakeFetcher) FetchState(teacherID uint) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.state.clone(), nil
}

func (f *fakeFetcher) set(state State) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func passNamed(name string) models.Pass {
	return models.Pass{StudentName: name, TimeOut: time.Now()}
}

func TestGetLoadsLazilyAndCaches(t *testing.T) {
	f := &fakeFetcher{state: State{Passes: []models.Pass{passNamed("Jordan")}}}
	s := NewStore(f)

	state, err := s.Get(7)
	require.NoError(t, err)
	require.Len(t, state.Passes, 1)
	assert.Equal(t, 1, f.count())

	// Second read is served from the snapshot.
	_, err = s.Get(7)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count())
}

func TestBeginWriteAckKeepsOptimisticValue(t *testing.T) {
	f := &fakeFetcher{}
	s := NewStore(f)
	_, err := s.Get(7)
	require.NoError(t, err)

	s.BeginWrite(7, func(st *State) {
		st.Passes = append([]models.Pass{passNamed("Jordan")}, st.Passes...)
	})
	s.Ack(7)

	state, err := s.Get(7)
	require.NoError(t, err)
	require.Len(t, state.Passes, 1)
	assert.Equal(t, "Jordan", state.Passes[0].StudentName)
}

func TestBeginWriteRollbackRestoresPriorState(t *testing.T) {
	f := &fakeFetcher{state: State{Passes: []models.Pass{passNamed("Jordan")}}}
	s := NewStore(f)
	_, err := s.Get(7)
	require.NoError(t, err)

	rollback := s.BeginWrite(7, func(st *State) {
		st.Passes = nil
	})

	mid, err := s.Get(7)
	require.NoError(t, err)
	assert.Empty(t, mid.Passes, "the optimistic mutation is visible immediately")

	rollback()

	state, err := s.Get(7)
	require.NoError(t, err)
	require.Len(t, state.Passes, 1)
	assert.Equal(t, "Jordan", state.Passes[0].StudentName)
}

func TestOnChangeDeferredWhileWriteInFlight(t *testing.T) {
	f := &fakeFetcher{}
	s := NewStore(f)
	_, err := s.Get(7)
	require.NoError(t, err)
	before := f.count()

	s.BeginWrite(7, func(st *State) {
		st.Passes = append(st.Passes, passNamed("Jordan"))
	})

	// The change event caused by our own write arrives before the ack.
	// It must not reload yet: a reload now could serve state older than
	// the write.
	s.OnChange(7)
	assert.Equal(t, before, f.count(), "reload must wait for the in-flight write")

	f.set(State{Passes: []models.Pass{passNamed("Jordan")}})
	s.Ack(7)

	// The deferred reload runs once the write settles.
	assert.Eventually(t, func() bool {
		return f.count() == before+1
	}, time.Second, 5*time.Millisecond)

	state, err := s.Get(7)
	require.NoError(t, err)
	require.Len(t, state.Passes, 1)
	assert.Equal(t, "Jordan", state.Passes[0].StudentName)
}

func TestOnChangeReloadsImmediatelyWhenIdle(t *testing.T) {
	f := &fakeFetcher{}
	s := NewStore(f)
	_, err := s.Get(7)
	require.NoError(t, err)

	f.set(State{Passes: []models.Pass{passNamed("Sam")}})
	s.OnChange(7)

	state, err := s.Get(7)
	require.NoError(t, err)
	require.Len(t, state.Passes, 1)
	assert.Equal(t, "Sam", state.Passes[0].StudentName)
}

func TestGetReturnsCopies(t *testing.T) {
	f := &fakeFetcher{state: State{Passes: []models.Pass{passNamed("Jordan")}}}
	s := NewStore(f)

	state, err := s.Get(7)
	require.NoError(t, err)
	state.Passes[0].StudentName = "mutated"

	again, err := s.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "Jordan", again.Passes[0].StudentName, "callers must not share the snapshot's backing slices")
}

func TestForgetDropsSnapshot(t *testing.T) {
	f := &fakeFetcher{}
	s := NewStore(f)
	_, err := s.Get(7)
	require.NoError(t, err)

	s.Forget(7)

	_, err = s.Get(7)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(), "a forgotten teacher reloads on next access")
}
