// Package apperrors maps the resolution core's error taxonomy onto httperror status codes.
//
// NotFound is 404, InvalidState is 409 and InvalidOperation is 400. Every error carries
// structured meta (kind, id, and for InvalidState the expected and actual status) so
// callers can render a precise message without parsing strings.
package apperrors

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

const (
	MetaKind     = "kind"
	MetaID       = "id"
	MetaExpected = "expected"
	MetaActual   = "actual"
)

// NotFound reports a missing entity, edge, task, proposal or invoice.
func NotFound(kind, id string) *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("%s %s not found", kind, id)).
		AddMetaValue(MetaKind, kind).
		AddMetaValue(MetaID, id)
}

// InvalidState reports an action attempted on a record that is not in the required status.
func InvalidState(kind, id, expected, actual string) *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict,
		fmt.Sprintf("%s %s is %s, expected %s", kind, id, actual, expected)).
		AddMetaValue(MetaKind, kind).
		AddMetaValue(MetaID, id).
		AddMetaValue(MetaExpected, expected).
		AddMetaValue(MetaActual, actual)
}

// InvalidOperation reports a logically nonsensical request. It is always raised before any write.
func InvalidOperation(format string, args ...any) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, format, args...)
}

func Internal(err error, msg string) *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("%s: %v", msg, err))
}

func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func IsInvalidState(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

func IsInvalidOperation(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

func hasStatus(err error, status int) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == status
}

// Meta returns the structured meta of an httperror, or nil for any other error.
func Meta(err error) map[string]any {
	if err == nil || !httperror.IsHTTPError(err) {
		return nil
	}
	return httperror.ToHTTPError(err).Meta
}
