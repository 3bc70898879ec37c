package logger

import "net/http"

var redactedHeaders = map[string]struct{}{
	"Authorization":    {},
	"X-Api-Key":        {},
	"X-User-Signature": {},
	"Cookie":           {},
}

// LogRequest logs an inbound HTTP request at debug level with sensitive
// headers redacted.
func LogRequest(r *http.Request) {
	if Log == nil {
		return
	}
	args := []any{"method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr}
	for k := range redactedHeaders {
		if r.Header.Get(k) != "" {
			args = append(args, "header_"+k, "[redacted]")
		}
	}
	Log.Debug("http_request", args...)
}
