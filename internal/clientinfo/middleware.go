package clientinfo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// Middleware creates HTTP middleware that parses the Shopsync-Client
// header and, when minVersion is non-empty, rejects clients below it.
//
// With an empty minVersion the header stays optional: a valid one is
// parsed into the request context for logging, anything else passes
// through untouched. Health endpoints are always exempt; probes are
// infrastructure, not clients.
func Middleware(minVersion string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(Header)
			if header == "" {
				if minVersion == "" {
					next.ServeHTTP(w, r)
					return
				}
				writeGateError(w, http.StatusBadRequest, "client_header_required",
					"Shopsync-Client header is required")
				return
			}

			info, err := ParseHeader(header)
			if err != nil {
				if minVersion == "" {
					logger.Warn("ignoring malformed client header",
						slog.String("header", header),
						slog.String("error", err.Error()))
					next.ServeHTTP(w, r)
					return
				}
				writeGateError(w, http.StatusBadRequest, "client_header_invalid",
					"Invalid Shopsync-Client header: "+err.Error())
				return
			}

			if minVersion != "" && !info.AtLeast(minVersion) {
				logger.Warn("client below minimum version",
					slog.String("client", info.Name),
					slog.String("version", info.Version),
					slog.String("min_version", minVersion))
				writeGateError(w, http.StatusUpgradeRequired, "client_upgrade_required",
					"client version "+info.Version+" is below the minimum "+minVersion)
				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), contextKey{}, info)))
		})
	}
}

// FromContext retrieves the parsed client info. The zero value means the
// request carried no (valid) header.
func FromContext(ctx context.Context) ClientInfo {
	if info, ok := ctx.Value(contextKey{}).(ClientInfo); ok {
		return info
	}
	return ClientInfo{}
}

func isExemptPath(path string) bool {
	return path == "/health" || path == "/healthz"
}

// writeGateError writes the standard error envelope.
func writeGateError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
