package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/httputil"
)

type errorResponse struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeInvalidAddress, apperrors.ErrCodeInvalidNetwork,
		apperrors.ErrCodeInvalidCursor:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound, apperrors.ErrCodeNodeNotFound, apperrors.ErrCodeUnknownNode,
		apperrors.ErrCodeSessionNotFound, apperrors.ErrCodeSnapshotNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeNetwork, apperrors.ErrCodeInvalidRecord:
		return http.StatusBadGateway
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeClosed:
		return http.StatusGone
	case apperrors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes err as a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	status := statusFor(code)

	var rl *apperrors.RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter))
	}
	switch {
	case status < http.StatusInternalServerError:
	case httputil.IsRetryable(err):
		s.logger.Warn("upstream unavailable", "method", r.Method, "path", r.URL.Path, "err", err)
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}

	msg := apperrors.UserMessage(err)
	if code == apperrors.ErrCodeInternal {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}
