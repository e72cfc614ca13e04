// Package task defines the Task data model shared by the queue,
// scheduler, fetcher, history and scripting packages.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is one of the task lifecycle states. Only the scheduler may
// mutate it once a task has been admitted into a FolderQueue.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusDeleted     Status = "deleted"
)

// ErrorKind categorizes failures for the retry policy and the error hook.
type ErrorKind string

const (
	ErrKindNetworkTransient ErrorKind = "network_transient"
	ErrKindServerTransient  ErrorKind = "server_transient"
	ErrKindClientPermanent  ErrorKind = "client_permanent"
	ErrKindStoragePermanent ErrorKind = "storage_permanent"
	ErrKindValidatorChanged ErrorKind = "validator_changed"
	ErrKindCanceled         ErrorKind = "canceled"
	ErrKindScript           ErrorKind = "script_error"
)

// Retriable reports whether the retry policy should re-enqueue a task
// that failed with this error kind.
func (k ErrorKind) Retriable() bool {
	switch k {
	case ErrKindNetworkTransient, ErrKindServerTransient:
		return true
	default:
		return false
	}
}

// ErrorInfo records the most recent failure for a task.
type ErrorInfo struct {
	Kind       ErrorKind `toml:"kind"`
	Message    string    `toml:"message"`
	StatusCode int       `toml:"status_code,omitempty"`
}

// Resumption holds the state needed to continue a partial download.
type Resumption struct {
	Supported     bool   `toml:"supported"`
	Validator     string `toml:"validator,omitempty"` // ETag or Last-Modified
	BytesVerified int64  `toml:"bytes_verified"`
}

// Overrides are per-task request customizations, either set at submit
// time or mutated by a completion hook (SavePathOverride/NewFilename).
type Overrides struct {
	Headers         map[string]string `toml:"headers,omitempty"`
	UserAgent       string            `toml:"user_agent,omitempty"`
	NewFilename     string            `toml:"new_filename,omitempty"`
	SavePathOverride string           `toml:"save_path_override,omitempty"`
}

// Destination identifies where a task's bytes land.
type Destination struct {
	FolderID  string `toml:"folder_id"`
	Directory string `toml:"directory"`
	Filename  string `toml:"filename"`
}

// Task is the unit of work scheduled, downloaded, and persisted by the
// core. Exactly one Status holds at a time (see Status); only the
// scheduler may mutate it.
type Task struct {
	ID     uuid.UUID   `toml:"-"`
	URL    string      `toml:"url"`
	Dest   Destination `toml:"dest"`
	Status Status      `toml:"status"`

	BytesDownloaded int64   `toml:"bytes_downloaded"`
	TotalBytes      int64   `toml:"total_bytes,omitempty"` // 0 = unknown
	Speed           float64 `toml:"-"`                     // EWMA bytes/s, not persisted

	CreatedAt   time.Time  `toml:"created_at"`
	StartedAt   *time.Time `toml:"started_at,omitempty"`
	CompletedAt *time.Time `toml:"completed_at,omitempty"`

	Priority    int64 `toml:"priority"`
	EnqueueSeq  int64 `toml:"enqueue_seq"`

	Resume Resumption `toml:"resume"`
	Error  ErrorInfo  `toml:"error"`
	RetryCount int    `toml:"retry_count"`

	Overrides Overrides `toml:"overrides"`

	speedEstimator ewma
}

// IDString is the 128-bit identity rendered as its canonical string form.
func (t *Task) IDString() string { return t.ID.String() }

// HasTotal reports whether the server-declared total size is known.
func (t *Task) HasTotal() bool { return t.TotalBytes > 0 }

// New creates a fresh Pending task with a freshly minted 128-bit id.
func New(url string, dest Destination, priority int64, enqueueSeq int64) *Task {
	return &Task{
		ID:         uuid.New(),
		URL:        url,
		Dest:       dest,
		Status:     StatusPending,
		Priority:   priority,
		EnqueueSeq: enqueueSeq,
		CreatedAt:  time.Now(),
	}
}

// RecordProgress advances bytes_downloaded monotonically within an
// attempt and updates the EWMA speed estimate.
func (t *Task) RecordProgress(downloaded int64, now time.Time) {
	if downloaded > t.BytesDownloaded {
		t.BytesDownloaded = downloaded
	}
	t.Speed = t.speedEstimator.update(t.BytesDownloaded, now)
}

// ewma tracks an exponentially weighted moving average of throughput,
// grounded on the SmoothedRTT update in the congestion controller this
// repo's teacher used for round-trip time, applied here to bytes/sec.
type ewma struct {
	lastBytes int64
	lastTime  time.Time
	value     float64
	init      bool
}

const ewmaAlpha = 0.2

func (e *ewma) update(bytes int64, now time.Time) float64 {
	if !e.init {
		e.lastBytes = bytes
		e.lastTime = now
		e.init = true
		return 0
	}
	dt := now.Sub(e.lastTime).Seconds()
	if dt <= 0 {
		return e.value
	}
	sample := float64(bytes-e.lastBytes) / dt
	if sample < 0 {
		sample = 0
	}
	e.value = ewmaAlpha*sample + (1-ewmaAlpha)*e.value
	e.lastBytes = bytes
	e.lastTime = now
	return e.value
}
