package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	name      string
	tasks     []TaskInfo
	enableErr error
	enabled   int
	disabled  int
	log       *[]string
	panicOff  bool
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Enable(_ *Engine, tasks *[]TaskInfo) error {
	if f.enableErr != nil {
		return f.enableErr
	}
	f.enabled++
	*tasks = append(*tasks, f.tasks...)
	return nil
}

func (f *fakeService) Disable(_ *Engine) {
	f.disabled++
	if f.log != nil {
		*f.log = append(*f.log, "disable:"+f.name)
	}
	if f.panicOff {
		panic("boom")
	}
}

func recordTask(name string, log *[]string) *TaskInfo {
	return NewTask(name).Fn(func(*Engine) { *log = append(*log, name) })
}

func TestTaskOrderingSucceedPrecede(t *testing.T) {
	var log []string
	consumer := &fakeService{name: "consumer", tasks: []TaskInfo{
		*recordTask("consumer", &log).Succeed("pull"),
	}}
	channeled := &fakeService{name: "channeled", tasks: []TaskInfo{
		*recordTask("pull", &log).Succeed("iterate").Precede("scene_tick"),
	}}
	pump := &fakeService{name: "pump", tasks: []TaskInfo{
		*recordTask("iterate", &log),
	}}

	e := New()
	e.AddService(consumer)
	e.AddService(channeled)
	e.AddService(pump)
	require.NoError(t, e.Enable())

	assert.Equal(t, []string{"iterate", "pull", "consumer"}, e.TaskOrder())

	e.Tick()
	e.Tick()
	assert.Equal(t, []string{"iterate", "pull", "consumer", "iterate", "pull", "consumer"}, log)
}

func TestUnconstrainedTasksKeepRegistrationOrder(t *testing.T) {
	var log []string
	svc := &fakeService{name: "svc", tasks: []TaskInfo{
		*recordTask("a", &log),
		*recordTask("b", &log),
		*recordTask("c", &log),
	}}

	e := New()
	e.AddService(svc)
	require.NoError(t, e.Enable())
	assert.Equal(t, []string{"a", "b", "c"}, e.TaskOrder())
}

func TestEnableDetectsCycle(t *testing.T) {
	svc := &fakeService{name: "svc", tasks: []TaskInfo{
		*NewTask("a").Succeed("b"),
		*NewTask("b").Succeed("a"),
	}}

	e := New()
	e.AddService(svc)
	err := e.Enable()
	assert.ErrorIs(t, err, ErrTaskCycle)
	assert.False(t, e.IsEnabled())
	assert.Equal(t, 1, svc.disabled, "enabled services are rolled back")
}

func TestEnableDetectsDuplicateTask(t *testing.T) {
	e := New()
	e.AddService(&fakeService{name: "one", tasks: []TaskInfo{*NewTask("x")}})
	e.AddService(&fakeService{name: "two", tasks: []TaskInfo{*NewTask("x")}})
	assert.ErrorIs(t, e.Enable(), ErrDuplicateTask)
}

func TestEnableRollsBackOnServiceFailure(t *testing.T) {
	var log []string
	first := &fakeService{name: "first", log: &log}
	failing := &fakeService{name: "failing", enableErr: errors.New("no transport")}
	last := &fakeService{name: "last"}

	e := New()
	e.AddService(first)
	e.AddService(failing)
	e.AddService(last)

	err := e.Enable()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, 1, first.disabled)
	assert.Equal(t, 0, last.enabled)
	assert.False(t, e.IsEnabled())
}

func TestEnableTwice(t *testing.T) {
	e := New()
	require.NoError(t, e.Enable())
	assert.ErrorIs(t, e.Enable(), ErrAlreadyEnabled)
}

func TestDisableReverseOrderAndCollectsPanics(t *testing.T) {
	var log []string
	a := &fakeService{name: "a", log: &log}
	b := &fakeService{name: "b", log: &log, panicOff: true}
	c := &fakeService{name: "c", log: &log}

	e := New()
	e.AddService(a)
	e.AddService(b)
	e.AddService(c)
	require.NoError(t, e.Enable())

	err := e.Disable()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disable b")
	assert.Equal(t, []string{"disable:c", "disable:b", "disable:a"}, log)
	assert.False(t, e.IsEnabled())
	assert.Empty(t, e.TaskOrder())
}

func TestTryService(t *testing.T) {
	e := New()
	svc := &fakeService{name: "svc"}
	e.AddService(svc)

	got, ok := TryService[*fakeService](e)
	require.True(t, ok)
	assert.Same(t, svc, got)

	type other interface {
		Service
		Other()
	}
	_, ok = TryService[other](e)
	assert.False(t, ok)
}

func TestRunStopsOnContext(t *testing.T) {
	ticks := 0
	e := New()
	e.AddService(&fakeService{name: "svc", tasks: []TaskInfo{
		*NewTask("count").Fn(func(*Engine) { ticks++ }),
	}})

	assert.ErrorIs(t, e.Run(context.Background(), time.Millisecond), ErrNotEnabled)

	require.NoError(t, e.Enable())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.Run(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, ticks, 0)
}
