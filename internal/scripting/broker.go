// Package scripting brokers hook invocations to a single-threaded
// JavaScript runtime, grounded on github.com/dop251/goja (a confirmed
// dependency of ethereum-go-ethereum) and the actor shape evidenced by
// that repo's internal/jsre package: one goroutine owns the
// *goja.Runtime for its entire life; every other goroutine reaches it
// only through a request channel, never the runtime handle itself.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout is the default per-handler execution deadline (spec §4.4).
const DefaultTimeout = 30 * time.Second

type handler struct {
	file     string
	order    int // registration order within file
	event    Event
	filter   *filter
	callback goja.Callable
}

// request is the tagged message the broker's loop goroutine consumes.
type request struct {
	kind    reqKind
	event   Event
	payload any
	reply   chan reply
	effective map[string]bool
}

type reqKind int

const (
	reqSync reqKind = iota
	reqAsync
	reqReload
	reqLog
)

type reply struct {
	value any
	err   error
}

// Broker owns the script runtime actor and exposes thread-safe
// send-only handles to the rest of the system.
type Broker struct {
	scriptsDir string
	timeout    time.Duration
	logger     *slog.Logger

	syncCh  chan request
	asyncCh chan request
	controlCh chan request

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Broker and starts its dedicated runtime goroutine.
// asyncBuffer bounds the fire-and-forget queue; once full, the oldest
// queued message is dropped to make room (spec §4.4 "drop-oldest").
func New(scriptsDir string, timeout time.Duration, asyncBuffer int, logger *slog.Logger) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if asyncBuffer <= 0 {
		asyncBuffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		scriptsDir: scriptsDir,
		timeout:    timeout,
		logger:     logger,
		syncCh:     make(chan request),
		asyncCh:    make(chan request, asyncBuffer),
		controlCh:  make(chan request),
		closed:     make(chan struct{}),
	}
	go b.runLoop()
	return b
}

// Close stops the runtime goroutine. Pending sync requests receive an
// error; queued async requests are dropped.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
}

// runLoop is the single goroutine that owns the goja.Runtime for the
// broker's entire lifetime. Nothing outside this function ever touches
// the VM directly.
func (b *Broker) runLoop() {
	vm := goja.New()
	reg := newRegistry()
	b.installBindings(vm, reg)
	b.loadScripts(vm, reg)

	for {
		select {
		case <-b.closed:
			return
		case req := <-b.controlCh:
			switch req.kind {
			case reqReload:
				vm = goja.New()
				reg = newRegistry()
				b.installBindings(vm, reg)
				err := b.loadScripts(vm, reg)
				req.reply <- reply{err: err}
			}
		case req := <-b.syncCh:
			b.dispatchSync(vm, reg, req)
		case req := <-b.asyncCh:
			b.dispatchAsync(vm, reg, req)
		}
	}
}

// installBindings wires the ggg.on/ggg.log global API into vm.
func (b *Broker) installBindings(vm *goja.Runtime, reg *registry) {
	obj := vm.NewObject()
	_ = obj.Set("on", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(vm.NewTypeError("ggg.on requires (eventName, callback, options?)"))
		}
		eventName := call.Argument(0).String()
		cb, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("ggg.on: second argument must be a function"))
		}
		pattern := ""
		if len(call.Arguments) >= 3 {
			if opts := call.Argument(2).ToObject(vm); opts != nil {
				if f := opts.Get("filter"); f != nil && !goja.IsUndefined(f) {
					pattern = f.String()
				}
			}
		}
		reg.register(reg.currentFile, Event(eventName), newFilter(pattern, b.logger), cb)
		return goja.Undefined()
	})
	_ = obj.Set("log", func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Argument(0).String()
		}
		b.logger.Info("script log", "message", msg, "file", reg.currentFile)
		return goja.Undefined()
	})
	_ = vm.Set("ggg", obj)
}

// loadScripts re-scans the script directory in lexicographic filename
// order, per spec §4.4's "Load order: lexicographic by filename."
func (b *Broker) loadScripts(vm *goja.Runtime, reg *registry) error {
	if b.scriptsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(b.scriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading scripts directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".js") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	var errs []string
	for _, name := range files {
		reg.currentFile = name
		src, err := os.ReadFile(filepath.Join(b.scriptsDir, name))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if _, err := vm.RunScript(name, string(src)); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	reg.currentFile = ""
	if len(errs) > 0 {
		return fmt.Errorf("script parse errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// FireSync sends a synchronous hook request and awaits the (possibly
// mutated) context. ctx governs the caller's wait, not the handler
// execution deadline, which is bounded separately by b.timeout.
func (b *Broker) FireSync(ctx context.Context, event Event, payload any, effective map[string]bool) (any, error) {
	req := request{kind: reqSync, event: event, payload: payload, reply: make(chan reply, 1), effective: effective}
	select {
	case b.syncCh <- req:
	case <-ctx.Done():
		return payload, ctx.Err()
	case <-b.closed:
		return payload, errors.New("script broker closed")
	}
	select {
	case r := <-req.reply:
		return r.value, r.err
	case <-ctx.Done():
		return payload, ctx.Err()
	case <-b.closed:
		return payload, errors.New("script broker closed")
	}
}

// FireAsync enqueues a fire-and-forget hook. If the async queue is
// saturated, the oldest queued message is dropped to make room.
func (b *Broker) FireAsync(event Event, payload any, effective map[string]bool) {
	req := request{kind: reqAsync, event: event, payload: payload, effective: effective}
	select {
	case b.asyncCh <- req:
		return
	default:
	}
	// Drop-oldest: make room for the newest sample.
	select {
	case <-b.asyncCh:
	default:
	}
	select {
	case b.asyncCh <- req:
	default:
		// Lost the race to another producer; drop this one instead of blocking.
	}
}

// Reload drains the handler registry, re-scans the script directory,
// and re-registers handlers, reporting success or aggregated parse
// errors synchronously to the requester.
func (b *Broker) Reload(ctx context.Context) error {
	req := request{kind: reqReload, reply: make(chan reply, 1)}
	select {
	case b.controlCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return errors.New("script broker closed")
	}
	select {
	case r := <-req.reply:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) dispatchSync(vm *goja.Runtime, reg *registry, req request) {
	handlers := reg.forEvent(req.event)
	payload := req.payload
	for _, h := range handlers {
		url := urlOf(payload)
		if !h.filter.matches(url) || !isEnabled(req.effective, h.file) {
			continue
		}
		result, stop, err := b.invoke(vm, h, payload)
		if err != nil {
			b.logger.Error("script handler error", "file", h.file, "event", string(req.event), "error", err)
			continue // sync hooks proceed with the prior, unmodified context on handler error/timeout
		}
		if result != nil {
			payload = result
		}
		if stop {
			break
		}
	}
	req.reply <- reply{value: payload}
}

func (b *Broker) dispatchAsync(vm *goja.Runtime, reg *registry, req request) {
	handlers := reg.forEvent(req.event)
	payload := req.payload
	url := urlOf(payload)
	for _, h := range handlers {
		if !h.filter.matches(url) || !isEnabled(req.effective, h.file) {
			continue
		}
		_, stop, err := b.invoke(vm, h, payload)
		if err != nil {
			b.logger.Error("script handler error (async, dropped)", "file", h.file, "event", string(req.event), "error", err)
			continue
		}
		if stop {
			break
		}
	}
}

// invoke runs one handler under a timeout, interrupting the VM from a
// watchdog goroutine if it overruns — the one operation goja documents
// as safe to call from outside the runtime's owning goroutine.
func (b *Broker) invoke(vm *goja.Runtime, h *handler, payload any) (result any, stop bool, err error) {
	jsArg, apply := newBinding(vm, payload)

	timer := time.AfterFunc(b.timeout, func() {
		vm.Interrupt("handler timed out")
	})
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	ret, callErr := h.callback(goja.Undefined(), jsArg.obj)
	if callErr != nil {
		return nil, false, callErr
	}

	mutated, applyErr := apply()
	if applyErr != nil {
		return nil, false, applyErr
	}

	// An explicit call to stopPropagation(), or a handler explicitly
	// returning a falsy value, halts the chain; undefined/omitted
	// returns continue propagation.
	stop = jsArg.explicitStop || (!goja.IsUndefined(ret) && ret != nil && !ret.ToBoolean())
	return mutated, stop, nil
}

func urlOf(payload any) string {
	switch p := payload.(type) {
	case BeforeRequestCtx:
		return p.URL
	case HeadersReceivedCtx:
		return p.URL
	case AuthRequiredCtx:
		return p.URL
	case CompletedCtx:
		return p.URL
	case ProgressCtx:
		return p.URL
	case ErrorCtx:
		return p.URL
	default:
		return ""
	}
}

func isEnabled(effective map[string]bool, file string) bool {
	if effective == nil {
		return true
	}
	enabled, ok := effective[file]
	if !ok {
		return true
	}
	return enabled
}

// ValidateHeaderKey rejects empty or non-ASCII header names, per spec
// §4.4's "broker validates ... header keys ASCII" isolation rule. Other
// characters (spaces, colons) are not checked.
func ValidateHeaderKey(key string) error {
	if key == "" {
		return errors.New("empty header key")
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c > 127 {
			return fmt.Errorf("header key %q is not ASCII", key)
		}
	}
	if http.CanonicalHeaderKey(key) == "" {
		return fmt.Errorf("invalid header key %q", key)
	}
	return nil
}

// ValidateFilename rejects filenames containing a path separator, per
// spec §8's "new_filename containing a path separator ⇒ rejected".
func ValidateFilename(name string) error {
	if name == "" {
		return nil
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("filename %q contains a path separator", name)
	}
	return nil
}
