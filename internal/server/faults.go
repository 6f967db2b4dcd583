package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

const codeMethodNotAllowed = "method_not_allowed"

var (
	errRouteNotFound    = fmt.Errorf("no such route: %w", types.ErrNotFound)
	errMethodNotAllowed = &types.Fault{Code: codeMethodNotAllowed, Message: "method not allowed"}
)

// statusFor maps a fault code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case types.CodeNotFound:
		return http.StatusNotFound
	case types.CodeAlreadyExists:
		return http.StatusConflict
	case types.CodeInvalidArgument, types.CodeUnknownWord, types.CodeInvalidRegion:
		return http.StatusBadRequest
	case types.CodeUnauthorized:
		return http.StatusUnauthorized
	case types.CodeRateLimited:
		return http.StatusTooManyRequests
	case types.CodeUnavailable:
		return http.StatusServiceUnavailable
	case codeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	}
	return http.StatusInternalServerError
}

// writeFault writes err as a fault body. Internal errors are logged by the
// request logger and reported without their detail.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	fault := types.NewFault(err)
	if fault.Code == types.CodeInternal {
		setRequestError(r, err)
		fault = &types.Fault{Code: types.CodeInternal, Message: "internal error"}
	}
	writeJSON(w, statusFor(fault.Code), api.FaultResponse{Fault: *fault})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", types.ErrInvalidArgument, tooLarge.Limit)
		}
		return fmt.Errorf("%w: decoding body: %v", types.ErrInvalidArgument, err)
	}
	return nil
}
