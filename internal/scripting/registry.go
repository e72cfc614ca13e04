package scripting

import "github.com/dop251/goja"

// registry holds handlers grouped by event, preserving load order
// (lexicographic by file, then registration order within a file) since
// loadScripts always runs files in that order before any handler fires.
type registry struct {
	currentFile string
	seq         int
	byEvent     map[Event][]*handler
}

func newRegistry() *registry {
	return &registry{byEvent: make(map[Event][]*handler)}
}

func (r *registry) register(file string, event Event, f *filter, cb goja.Callable) {
	r.seq++
	r.byEvent[event] = append(r.byEvent[event], &handler{
		file:     file,
		order:    r.seq,
		event:    event,
		filter:   f,
		callback: cb,
	})
}

func (r *registry) forEvent(event Event) []*handler {
	return r.byEvent[event]
}
