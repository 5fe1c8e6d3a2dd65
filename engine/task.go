package engine

// TaskInfo describes one per-tick task and its ordering constraints.
type TaskInfo struct {
	Name     string
	Run      func(*Engine)
	Succeeds []string
	Precedes []string
}

// NewTask starts building a task named name.
func NewTask(name string) *TaskInfo {
	return &TaskInfo{Name: name}
}

// Fn sets the function run every tick.
func (t *TaskInfo) Fn(fn func(*Engine)) *TaskInfo {
	t.Run = fn
	return t
}

// Succeed orders this task after the named tasks.
func (t *TaskInfo) Succeed(names ...string) *TaskInfo {
	t.Succeeds = append(t.Succeeds, names...)
	return t
}

// Precede orders this task before the named tasks.
func (t *TaskInfo) Precede(names ...string) *TaskInfo {
	t.Precedes = append(t.Precedes, names...)
	return t
}
