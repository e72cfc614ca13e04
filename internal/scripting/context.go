package scripting

// Event names the broker dispatches, matching spec §3/§6 exactly.
type Event string

const (
	EventBeforeRequest    Event = "beforeRequest"
	EventHeadersReceived  Event = "headersReceived"
	EventAuthRequired     Event = "authRequired"
	EventCompleted        Event = "completed"
	EventProgress         Event = "progress"
	EventError            Event = "error"
)

// BeforeRequestCtx is mutable: url, headers, and user_agent may be
// rewritten by a handler before the request is issued.
type BeforeRequestCtx struct {
	URL        string
	Headers    map[string]string
	UserAgent  string
	DownloadID string
}

// HeadersReceivedCtx is read-only.
type HeadersReceivedCtx struct {
	URL           string
	Status        int
	Headers       map[string]string
	ContentLength int64
	ETag          string
	LastModified  string
	ContentType   string
}

// AuthRequiredCtx describes a 401/407 challenge. A handler returns
// credentials via AuthResult.
type AuthRequiredCtx struct {
	URL    string
	Scheme string
	Realm  string
}

// AuthResult is what a handler may hand back for AuthRequired: either
// a user/password pair or a raw header to inject.
type AuthResult struct {
	User       string
	Password   string
	HeaderName string
	HeaderVal  string
	Provided   bool
}

// CompletedCtx is mutable: NewFilename and MoveToPath may be set by a
// handler to rename/relocate the finished file.
type CompletedCtx struct {
	URL         string
	Filename    string
	SavePath    string
	Size        int64
	DurationMS  int64
	NewFilename string
	MoveToPath  string
}

// ProgressCtx is read-only and fire-and-forget.
type ProgressCtx struct {
	URL        string
	Filename   string
	Downloaded int64
	Total      int64 // 0 = unknown
	Speed      float64
	Percentage float64 // -1 = unknown
}

// ErrorCtx is read-only and fire-and-forget.
type ErrorCtx struct {
	URL        string
	Filename   string
	Error      string
	RetryCount int
	StatusCode int
}
