package strata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Device fixture: a power-managed appliance controller.
type deviceState string

const (
	devOff     deviceState = "off"
	devStandby deviceState = "standby"
	devActive  deviceState = "active"
	devError   deviceState = "error"
)

type deviceEvent string

const (
	devPowerOn       deviceEvent = "power_on"
	devPowerOff      deviceEvent = "power_off"
	devActivate      deviceEvent = "activate"
	devDeactivate    deviceEvent = "deactivate"
	devErrorOccurred deviceEvent = "error_occurred"
	devReset         deviceEvent = "reset"
)

type deviceCtx struct {
	powerLevel int
	errorCount int
}

type devOffState struct{}

func (devOffState) OnEnter(_ context.Context, c *deviceCtx) Response[deviceState] {
	c.powerLevel = 0
	return Handled[deviceState]()
}

func (devOffState) OnEvent(_ context.Context, ev deviceEvent, _ *deviceCtx) Response[deviceState] {
	if ev == devPowerOn {
		return TransitionTo(devStandby)
	}
	return Failf[deviceState]("device is off")
}

func (devOffState) OnExit(_ context.Context, _ *deviceCtx) {}

type devStandbyState struct{}

func (devStandbyState) OnEnter(_ context.Context, c *deviceCtx) Response[deviceState] {
	c.powerLevel = 25
	return Handled[deviceState]()
}

func (devStandbyState) OnEvent(_ context.Context, ev deviceEvent, _ *deviceCtx) Response[deviceState] {
	switch ev {
	case devPowerOff:
		return TransitionTo(devOff)
	case devActivate:
		return TransitionTo(devActive)
	case devErrorOccurred:
		return TransitionTo(devError)
	default:
		return Handled[deviceState]()
	}
}

func (devStandbyState) OnExit(_ context.Context, _ *deviceCtx) {}

func (devStandbyState) Timeout(_ context.Context, _ *deviceCtx) (time.Duration, bool) {
	// Auto-shutdown hint after a minute idle.
	return 60 * time.Second, true
}

type devActiveState struct{}

func (devActiveState) OnEnter(_ context.Context, c *deviceCtx) Response[deviceState] {
	c.powerLevel = 100
	return Handled[deviceState]()
}

func (devActiveState) OnEvent(_ context.Context, ev deviceEvent, _ *deviceCtx) Response[deviceState] {
	switch ev {
	case devPowerOff:
		return TransitionTo(devOff)
	case devDeactivate:
		return TransitionTo(devStandby)
	case devErrorOccurred:
		return TransitionTo(devError)
	default:
		return Handled[deviceState]()
	}
}

func (devActiveState) OnExit(_ context.Context, _ *deviceCtx) {}

func (devActiveState) Timeout(_ context.Context, c *deviceCtx) (time.Duration, bool) {
	// Shorter leash once the device has been flaky.
	if c.errorCount > 3 {
		return 10 * time.Second, true
	}
	return 30 * time.Second, true
}

type devErrorState struct{}

func (devErrorState) OnEnter(_ context.Context, c *deviceCtx) Response[deviceState] {
	c.errorCount++
	c.powerLevel = 10
	return Handled[deviceState]()
}

func (devErrorState) OnEvent(_ context.Context, ev deviceEvent, c *deviceCtx) Response[deviceState] {
	switch ev {
	case devReset:
		if c.errorCount < 5 {
			return TransitionTo(devStandby)
		}
		return TransitionTo(devOff)
	case devPowerOff:
		return TransitionTo(devOff)
	default:
		return Handled[deviceState]()
	}
}

func (devErrorState) OnExit(_ context.Context, _ *deviceCtx) {}

func (devErrorState) Timeout(_ context.Context, _ *deviceCtx) (time.Duration, bool) {
	return 5 * time.Second, true
}

func newDeviceMachine(t *testing.T) *Machine[deviceState, deviceEvent, deviceCtx] {
	t.Helper()
	return New[deviceState, deviceEvent](deviceCtx{}).
		State(devOff, devOffState{}).
		State(devStandby, devStandbyState{}).
		State(devActive, devActiveState{}).
		State(devError, devErrorState{}).
		Logger(quietLogger()).
		Build()
}

func TestDevice_Lifecycle(t *testing.T) {
	m := newDeviceMachine(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx, devOff))
	assert.Equal(t, 0, m.Context().powerLevel)

	steps := []struct {
		event deviceEvent
		want  deviceState
		power int
	}{
		{devPowerOn, devStandby, 25},
		{devActivate, devActive, 100},
		{devErrorOccurred, devError, 10},
		{devReset, devStandby, 25},
		{devPowerOff, devOff, 0},
	}
	for _, step := range steps {
		require.NoError(t, m.ProcessEvent(ctx, step.event), "event %s", step.event)
		assert.Equal(t, step.want, mustCurrent(t, m), "after %s", step.event)
		assert.Equal(t, step.power, m.Context().powerLevel, "power after %s", step.event)
		if step.event == devErrorOccurred {
			assert.Equal(t, 1, m.Context().errorCount)
		}
	}
}

func TestDevice_RecoveryLimit(t *testing.T) {
	m := newDeviceMachine(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, devOff))
	require.NoError(t, m.ProcessEvent(ctx, devPowerOn))

	// Four faults recover back to standby.
	for i := 1; i <= 4; i++ {
		require.NoError(t, m.ProcessEvent(ctx, devErrorOccurred))
		assert.Equal(t, i, m.Context().errorCount)
		require.NoError(t, m.ProcessEvent(ctx, devReset))
		assert.Equal(t, devStandby, mustCurrent(t, m))
	}

	// The fifth fault exceeds the limit: reset shuts the device down.
	require.NoError(t, m.ProcessEvent(ctx, devErrorOccurred))
	assert.Equal(t, 5, m.Context().errorCount)
	require.NoError(t, m.ProcessEvent(ctx, devReset))
	assert.Equal(t, devOff, mustCurrent(t, m))
}

func TestDevice_Timeouts(t *testing.T) {
	m := newDeviceMachine(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, devOff))

	_, ok := m.CurrentTimeout(ctx)
	assert.False(t, ok, "off suggests no timeout")

	require.NoError(t, m.ProcessEvent(ctx, devPowerOn))
	d, ok := m.CurrentTimeout(ctx)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, d)

	require.NoError(t, m.ProcessEvent(ctx, devActivate))
	d, ok = m.CurrentTimeout(ctx)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	// Accumulate four faults; the active timeout tightens.
	for i := 0; i < 4; i++ {
		require.NoError(t, m.ProcessEvent(ctx, devErrorOccurred))
		require.NoError(t, m.ProcessEvent(ctx, devReset))
		require.NoError(t, m.ProcessEvent(ctx, devActivate))
	}
	d, ok = m.CurrentTimeout(ctx)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, d)
}

func TestDevice_RejectedEventStaysOff(t *testing.T) {
	m := newDeviceMachine(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, devOff))

	for _, ev := range []deviceEvent{devActivate, devReset, devDeactivate} {
		err := m.ProcessEvent(ctx, ev)
		require.Error(t, err, "event %s", ev)
		assert.True(t, IsInvalidEvent(err))
		assert.Equal(t, devOff, mustCurrent(t, m))
	}
	assert.Equal(t, 0, m.Context().errorCount)
}

// TestDevice_ChannelHost drives one machine from a dedicated goroutine, the
// ownership discipline hosts use to serialize dispatch.
func TestDevice_ChannelHost(t *testing.T) {
	m := newDeviceMachine(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, devOff))

	events := make(chan deviceEvent)
	results := make(chan error)
	go func() {
		for ev := range events {
			results <- m.ProcessEvent(ctx, ev)
		}
		close(results)
	}()

	sequence := []deviceEvent{devPowerOn, devActivate, devDeactivate, devPowerOff}
	go func() {
		for _, ev := range sequence {
			events <- ev
		}
		close(events)
	}()

	var errs []error
	for err := range results {
		errs = append(errs, err)
	}

	require.Len(t, errs, len(sequence))
	for i, err := range errs {
		assert.NoError(t, err, "event %s", sequence[i])
	}
	assert.Equal(t, devOff, mustCurrent(t, m))
	assert.Equal(t, 0, m.Context().powerLevel)
}
