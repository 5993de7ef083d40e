package types

// WorkerState is the owner-side view of one worker process.
type WorkerState string

const (
	WorkerRunning WorkerState = "running"
	WorkerExited  WorkerState = "exited"
)

// WorkerStatus describes a pool member for GET /workers.
type WorkerStatus struct {
	// Position of the worker in the pool.
	// example: 0
	Index int `json:"index" example:"0"`
	// OS process id.
	// example: 12345
	PID int `json:"pid" example:"12345"`
	// example: running
	State WorkerState `json:"state" example:"running"`
	// Start time (unix seconds).
	// example: 1700000000
	StartedUnix int64 `json:"started_unix" example:"1700000000"`
	// Exit error, if the process ended abnormally.
	ExitError string `json:"exit_error,omitempty"`
}

// PoolStatus is returned by GET /workers.
type PoolStatus struct {
	// Shared listening port.
	// example: 50000
	Port int `json:"port" example:"50000"`
	// Configured pool size.
	// example: 4
	Size int `json:"size" example:"4"`
	// True once StopServer (or a signal) has enqueued the shutdown items.
	Stopping bool           `json:"stopping"`
	Workers  []WorkerStatus `json:"workers"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// HealthReport partitions discovered worker pids by serving status.
type HealthReport struct {
	Serving        []int `json:"serving"`
	StoppedServing []int `json:"stopped_serving"`
}
