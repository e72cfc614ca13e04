package task

import (
	"time"

	"github.com/google/uuid"
)

func parseOrNewID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}

// Record is the stable, backward-compatible on-disk shape described in
// spec §6 ("Queue record fields"). It is flat (no nested structs) so
// that TOML files stay readable and new optional fields can be added
// without breaking older readers — readers simply see the zero value.
type Record struct {
	ID             string `toml:"id"`
	URL            string `toml:"url"`
	Filename       string `toml:"filename"`
	SavePath       string `toml:"save_path"`
	FolderID       string `toml:"folder_id"`
	Size           int64  `toml:"size,omitempty"`
	Downloaded     int64  `toml:"downloaded"`
	Status         string `toml:"status"`
	Priority       int64  `toml:"priority"`
	CreatedAt      string `toml:"created_at,omitempty"`
	StartedAt      string `toml:"started_at,omitempty"`
	CompletedAt    string `toml:"completed_at,omitempty"`
	ResumeSupported bool  `toml:"resume_supported"`
	ETag           string `toml:"etag,omitempty"`
	LastModified   string `toml:"last_modified,omitempty"`
	RetryCount     int    `toml:"retry_count"`
	LastError      string `toml:"last_error,omitempty"`
	Headers        map[string]string `toml:"headers,omitempty"`
	UserAgent      string `toml:"user_agent,omitempty"`
	EnqueueSeq     int64  `toml:"enqueue_seq"`
}

const timeLayout = time.RFC3339Nano

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// ToRecord flattens a Task into its stable on-disk representation.
func (t *Task) ToRecord() Record {
	r := Record{
		ID:              t.ID.String(),
		URL:             t.URL,
		Filename:        t.Dest.Filename,
		SavePath:        t.Dest.Directory,
		FolderID:        t.Dest.FolderID,
		Size:            t.TotalBytes,
		Downloaded:      t.BytesDownloaded,
		Status:          string(t.Status),
		Priority:        t.Priority,
		CreatedAt:       formatTime(&t.CreatedAt),
		StartedAt:       formatTime(t.StartedAt),
		CompletedAt:     formatTime(t.CompletedAt),
		ResumeSupported: t.Resume.Supported,
		ETag:            t.Resume.Validator,
		RetryCount:      t.RetryCount,
		LastError:       t.Error.Message,
		Headers:         t.Overrides.Headers,
		UserAgent:       t.Overrides.UserAgent,
		EnqueueSeq:      t.EnqueueSeq,
	}
	return r
}

// FromRecord reconstructs a Task from its on-disk representation.
// Unknown or empty fields degrade gracefully rather than erroring, per
// spec §4.6's "readers tolerate absence" guarantee.
func FromRecord(r Record) (*Task, error) {
	id, err := parseOrNewID(r.ID)
	if err != nil {
		return nil, err
	}
	t := &Task{
		ID:  id,
		URL: r.URL,
		Dest: Destination{
			FolderID:  r.FolderID,
			Directory: r.SavePath,
			Filename:  r.Filename,
		},
		Status:          Status(r.Status),
		TotalBytes:      r.Size,
		BytesDownloaded: r.Downloaded,
		Priority:        r.Priority,
		EnqueueSeq:      r.EnqueueSeq,
		RetryCount:      r.RetryCount,
		Resume: Resumption{
			Supported: r.ResumeSupported,
			Validator: r.ETag,
		},
		Overrides: Overrides{
			Headers:   r.Headers,
			UserAgent: r.UserAgent,
		},
	}
	if r.LastError != "" {
		t.Error.Message = r.LastError
	}
	if created := parseTime(r.CreatedAt); created != nil {
		t.CreatedAt = *created
	} else {
		t.CreatedAt = time.Now()
	}
	t.StartedAt = parseTime(r.StartedAt)
	t.CompletedAt = parseTime(r.CompletedAt)
	return t, nil
}
