package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyEnabled is returned by Enable on a running engine.
	ErrAlreadyEnabled = errors.New("engine already enabled")
	// ErrNotEnabled is returned by Run before Enable.
	ErrNotEnabled = errors.New("engine not enabled")
	// ErrTaskCycle is returned when task ordering constraints form a cycle.
	ErrTaskCycle = errors.New("task ordering cycle")
	// ErrDuplicateTask is returned when two tasks share a name.
	ErrDuplicateTask = errors.New("duplicate task name")
)

// Service is a unit of functionality with a lifecycle and per-tick tasks.
type Service interface {
	// Name identifies the service in logs and lookups
	Name() string

	// Enable prepares the service and appends its tasks
	Enable(e *Engine, tasks *[]TaskInfo) error

	// Disable releases what Enable acquired
	Disable(e *Engine)
}

// Engine owns services and runs their tasks once per tick.
type Engine struct {
	mu       sync.Mutex
	services []Service
	enabled  []Service
	tasks    []TaskInfo
	running  bool
}

// New creates an engine without services.
func New() *Engine {
	return &Engine{}
}

// AddService registers a service. Services added while the engine is enabled
// take effect on the next Enable.
func (e *Engine) AddService(s Service) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.services = append(e.services, s)
}

// Services returns the registered services in insertion order.
func (e *Engine) Services() []Service {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Service(nil), e.services...)
}

// TryService returns the first registered service of type T.
func TryService[T Service](e *Engine) (T, bool) {
	for _, s := range e.Services() {
		if t, ok := s.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Enable enables every service in insertion order and computes the task
// order. If a service fails to enable, the services enabled before it are
// disabled again and the error is returned.
func (e *Engine) Enable() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyEnabled
	}
	services := append([]Service(nil), e.services...)
	e.mu.Unlock()

	var tasks []TaskInfo
	var enabled []Service
	for _, s := range services {
		if err := s.Enable(e, &tasks); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.Enable",
				"service":  s.Name(),
				"error":    err.Error(),
			}).Error("Failed to enable service")
			disableAll(e, enabled)
			return fmt.Errorf("enable %s: %w", s.Name(), err)
		}
		enabled = append(enabled, s)
	}

	ordered, err := orderTasks(tasks)
	if err != nil {
		disableAll(e, enabled)
		return err
	}

	e.mu.Lock()
	e.enabled = enabled
	e.tasks = ordered
	e.running = true
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.Enable",
		"services": len(enabled),
		"tasks":    len(ordered),
	}).Info("Engine enabled")
	return nil
}

func disableAll(e *Engine, services []Service) {
	for i := len(services) - 1; i >= 0; i-- {
		services[i].Disable(e)
	}
}

// Disable disables enabled services in reverse order. Panics raised by a
// service's Disable are collected and returned so the remaining services
// still get disabled.
func (e *Engine) Disable() error {
	e.mu.Lock()
	enabled := e.enabled
	e.enabled = nil
	e.tasks = nil
	e.running = false
	e.mu.Unlock()

	var errs error
	for i := len(enabled) - 1; i >= 0; i-- {
		if err := safeDisable(e, enabled[i]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

func safeDisable(e *Engine, s Service) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("disable %s: %v", s.Name(), r)
			logrus.WithFields(logrus.Fields{
				"function": "Engine.Disable",
				"service":  s.Name(),
				"panic":    r,
			}).Error("Service panicked while disabling")
		}
	}()
	s.Disable(e)
	return nil
}

// IsEnabled reports whether Enable succeeded and Disable has not run since.
func (e *Engine) IsEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// TaskOrder returns the task names in execution order.
func (e *Engine) TaskOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, len(e.tasks))
	for i, t := range e.tasks {
		names[i] = t.Name
	}
	return names
}

// Tick runs every task once in order.
func (e *Engine) Tick() {
	e.mu.Lock()
	tasks := e.tasks
	e.mu.Unlock()

	for _, t := range tasks {
		if t.Run != nil {
			t.Run(e)
		}
	}
}

// Run ticks every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if !e.IsEnabled() {
		return ErrNotEnabled
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.Tick()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// orderTasks sorts tasks topologically, keeping registration order between
// unconstrained tasks.
func orderTasks(tasks []TaskInfo) ([]TaskInfo, error) {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, dup := index[t.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTask, t.Name)
		}
		index[t.Name] = i
	}

	after := make([][]int, len(tasks)) // after[i]: tasks that must run after i
	indegree := make([]int, len(tasks))
	addEdge := func(from, to int) {
		after[from] = append(after[from], to)
		indegree[to]++
	}
	for i, t := range tasks {
		for _, name := range t.Succeeds {
			if j, ok := index[name]; ok {
				addEdge(j, i)
			}
		}
		for _, name := range t.Precedes {
			if j, ok := index[name]; ok {
				addEdge(i, j)
			}
		}
	}

	ordered := make([]TaskInfo, 0, len(tasks))
	done := make([]bool, len(tasks))
	for len(ordered) < len(tasks) {
		next := -1
		for i := range tasks {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, ErrTaskCycle
		}
		done[next] = true
		ordered = append(ordered, tasks[next])
		for _, j := range after[next] {
			indegree[j]--
		}
	}
	return ordered, nil
}
