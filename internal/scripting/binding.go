package scripting

import (
	"fmt"
	"net/url"

	"github.com/dop251/goja"
)

// jsBinding is the object handed to a JS callback: a read view of the
// hook context plus whichever setter methods that event's contract
// allows, per spec §6's embedded API. apply() (returned alongside it)
// reconciles whatever the handler called into a new, validated payload.
type jsBinding struct {
	obj          *goja.Object
	explicitStop bool
}

// newBinding builds the goja.Value passed to a handler for payload, and
// returns an apply func that materializes the handler's mutations (if
// any) back into a Go value of the same type as payload, validating
// each mutation per spec §4.4/§8's isolation rules.
func newBinding(vm *goja.Runtime, payload any) (*jsBinding, func() (any, error)) {
	jb := &jsBinding{obj: vm.NewObject()}

	_ = jb.obj.Set("stopPropagation", func(goja.FunctionCall) goja.Value {
		jb.explicitStop = true
		return goja.Undefined()
	})

	switch p := payload.(type) {
	case BeforeRequestCtx:
		newURL := p.URL
		headers := cloneHeaders(p.Headers)
		userAgent := p.UserAgent

		_ = jb.obj.Set("url", p.URL)
		_ = jb.obj.Set("headers", headers)
		_ = jb.obj.Set("user_agent", p.UserAgent)
		_ = jb.obj.Set("download_id", p.DownloadID)
		_ = jb.obj.Set("setUrl", func(call goja.FunctionCall) goja.Value {
			newURL = call.Argument(0).String()
			return goja.Undefined()
		})
		_ = jb.obj.Set("setHeader", func(call goja.FunctionCall) goja.Value {
			k := call.Argument(0).String()
			v := call.Argument(1).String()
			if headers == nil {
				headers = map[string]string{}
			}
			headers[k] = v
			return goja.Undefined()
		})
		_ = jb.obj.Set("removeHeader", func(call goja.FunctionCall) goja.Value {
			delete(headers, call.Argument(0).String())
			return goja.Undefined()
		})
		_ = jb.obj.Set("setUserAgent", func(call goja.FunctionCall) goja.Value {
			userAgent = call.Argument(0).String()
			return goja.Undefined()
		})

		return jb, func() (any, error) {
			if _, err := url.Parse(newURL); err != nil {
				return nil, fmt.Errorf("beforeRequest: handler set an invalid url: %w", err)
			}
			for k := range headers {
				if err := ValidateHeaderKey(k); err != nil {
					return nil, fmt.Errorf("beforeRequest: %w", err)
				}
			}
			out := p
			out.URL = newURL
			out.Headers = headers
			out.UserAgent = userAgent
			return out, nil
		}

	case HeadersReceivedCtx:
		_ = jb.obj.Set("url", p.URL)
		_ = jb.obj.Set("status", p.Status)
		_ = jb.obj.Set("headers", cloneHeaders(p.Headers))
		_ = jb.obj.Set("content_length", p.ContentLength)
		_ = jb.obj.Set("etag", p.ETag)
		_ = jb.obj.Set("last_modified", p.LastModified)
		_ = jb.obj.Set("content_type", p.ContentType)
		return jb, func() (any, error) { return p, nil }

	case AuthRequiredCtx:
		result := AuthResult{}
		_ = jb.obj.Set("url", p.URL)
		_ = jb.obj.Set("scheme", p.Scheme)
		_ = jb.obj.Set("realm", p.Realm)
		_ = jb.obj.Set("provide", func(call goja.FunctionCall) goja.Value {
			opts := call.Argument(0).ToObject(vm)
			if opts == nil {
				return goja.Undefined()
			}
			result.Provided = true
			if v := opts.Get("user"); v != nil && !goja.IsUndefined(v) {
				result.User = v.String()
			}
			if v := opts.Get("password"); v != nil && !goja.IsUndefined(v) {
				result.Password = v.String()
			}
			if v := opts.Get("headerName"); v != nil && !goja.IsUndefined(v) {
				result.HeaderName = v.String()
			}
			if v := opts.Get("headerValue"); v != nil && !goja.IsUndefined(v) {
				result.HeaderVal = v.String()
			}
			return goja.Undefined()
		})
		return jb, func() (any, error) { return result, nil }

	case CompletedCtx:
		newFilename := p.NewFilename
		moveTo := p.MoveToPath
		_ = jb.obj.Set("url", p.URL)
		_ = jb.obj.Set("filename", p.Filename)
		_ = jb.obj.Set("save_path", p.SavePath)
		_ = jb.obj.Set("size", p.Size)
		_ = jb.obj.Set("duration_ms", p.DurationMS)
		_ = jb.obj.Set("rename", func(call goja.FunctionCall) goja.Value {
			newFilename = call.Argument(0).String()
			return goja.Undefined()
		})
		_ = jb.obj.Set("moveTo", func(call goja.FunctionCall) goja.Value {
			moveTo = call.Argument(0).String()
			return goja.Undefined()
		})

		return jb, func() (any, error) {
			if err := ValidateFilename(newFilename); err != nil {
				return nil, fmt.Errorf("completed: %w", err)
			}
			out := p
			out.NewFilename = newFilename
			out.MoveToPath = moveTo
			return out, nil
		}

	case ProgressCtx:
		_ = jb.obj.Set("url", p.URL)
		_ = jb.obj.Set("filename", p.Filename)
		_ = jb.obj.Set("downloaded", p.Downloaded)
		_ = jb.obj.Set("total", p.Total)
		_ = jb.obj.Set("speed", p.Speed)
		_ = jb.obj.Set("percentage", p.Percentage)
		return jb, func() (any, error) { return p, nil }

	case ErrorCtx:
		_ = jb.obj.Set("url", p.URL)
		_ = jb.obj.Set("filename", p.Filename)
		_ = jb.obj.Set("error", p.Error)
		_ = jb.obj.Set("retry_count", p.RetryCount)
		_ = jb.obj.Set("status_code", p.StatusCode)
		return jb, func() (any, error) { return p, nil }

	default:
		return jb, func() (any, error) { return payload, nil }
	}
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
