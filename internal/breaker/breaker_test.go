package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)}
	return New(maxFailures, 10*time.Second, WithClock(clk.Now)), clk
}

var errFail = errors.New("fail")

func fail() error { return errFail }
func ok() error   { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3)
	assert.Equal(t, StateClosed, b.CurrentState())
	assert.Equal(t, "closed", b.CurrentState().String())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Execute(fail), errFail)
	}
	assert.Equal(t, StateOpen, b.CurrentState())
	assert.Equal(t, 3, b.Failures())
	assert.ErrorIs(t, b.LastError(), errFail)

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clk := newTestBreaker(2)
	b.Execute(fail)
	b.Execute(fail)
	require.Equal(t, StateOpen, b.CurrentState())

	clk.Advance(10 * time.Second)
	require.NoError(t, b.Execute(ok))
	assert.Equal(t, StateClosed, b.CurrentState())
	assert.Zero(t, b.Failures())
	assert.NoError(t, b.LastError())
}

func TestBreaker_HalfOpenFailure(t *testing.T) {
	b, clk := newTestBreaker(2)
	b.Execute(fail)
	b.Execute(fail)

	clk.Advance(11 * time.Second)
	assert.ErrorIs(t, b.Execute(fail), errFail)
	assert.Equal(t, StateOpen, b.CurrentState())

	clk.Advance(5 * time.Second)
	assert.ErrorIs(t, b.Execute(ok), ErrOpen, "reopened breaker restarts its timeout")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	b.Execute(fail)
	b.Execute(fail)
	b.Execute(ok)
	b.Execute(fail)
	b.Execute(fail)
	assert.Equal(t, StateClosed, b.CurrentState())
	assert.Equal(t, 2, b.Failures())
}

func TestBreaker_OnStateChange(t *testing.T) {
	b, clk := newTestBreaker(1)
	var transitions []State
	b.OnStateChange = func(_, to State) { transitions = append(transitions, to) }

	b.Execute(fail)
	assert.Equal(t, []State{StateOpen}, transitions)

	clk.Advance(time.Minute)
	b.Execute(ok)
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestNew_ClampsMaxFailures(t *testing.T) {
	b, _ := newTestBreaker(0)
	b.Execute(fail)
	assert.Equal(t, StateOpen, b.CurrentState())
}
