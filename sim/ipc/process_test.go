package ipc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ev3sim/ev3sim/sim"
)

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("program did not finish")
	}
}

func TestLaunch_CleanExit(t *testing.T) {
	var failed error
	p := Launch(context.Background(), "Robot-0", func(context.Context) error { return nil }, func(err error) { failed = err })
	waitDone(t, p)
	assert.NoError(t, p.Err())
	assert.NoError(t, failed)
	assert.Equal(t, "Robot-0", p.RobotID())
}

func TestLaunch_ErrorBecomesRobotProcessError(t *testing.T) {
	boom := errors.New("boom")
	failed := make(chan error, 1)
	p := Launch(context.Background(), "Robot-0", func(context.Context) error { return boom }, func(err error) { failed <- err })
	waitDone(t, p)

	var rpe *sim.RobotProcessError
	require.True(t, errors.As(p.Err(), &rpe))
	assert.Equal(t, "Robot-0", rpe.Robot)
	assert.ErrorIs(t, p.Err(), boom)
	assert.Equal(t, p.Err(), <-failed)
}

func TestLaunch_PanicIsRecovered(t *testing.T) {
	p := Launch(context.Background(), "Robot-1", func(context.Context) error { panic("kaboom") }, nil)
	waitDone(t, p)

	var rpe *sim.RobotProcessError
	require.True(t, errors.As(p.Err(), &rpe))
	assert.Contains(t, rpe.Error(), "kaboom")
	assert.NotEmpty(t, rpe.Stack)
}

func TestLaunch_CancelledContextIsCleanExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Launch(ctx, "Robot-0", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	cancel()
	waitDone(t, p)
	assert.NoError(t, p.Err())
}
