// Package tracing records the lifecycle of scheduler tasks so a run can be
// inspected after the fact.
package tracing

// A TaskRecord is the stored summary of one task.
type TaskRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error"`
	SpawnTime uint64 `json:"spawn_time"`
	EndTime   uint64 `json:"end_time"`
}

// A SliceRecord is one contiguous stretch of execution of a task between a
// resumption and the following suspension. Times are in femtoseconds.
type SliceRecord struct {
	TaskID    string `json:"task_id"`
	StartTime uint64 `json:"start_time"`
	EndTime   uint64 `json:"end_time"`
}
