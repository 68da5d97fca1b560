package errutil

import "net/http"

// CoreStatus is the transport independent classification of an error.
type CoreStatus string

const (
	StatusBadRequest CoreStatus = "bad_request"
	StatusNotFound   CoreStatus = "not_found"
	StatusInternal   CoreStatus = "internal"
)

// HTTPStatus maps the status to the response code used by the HTTP entry points.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
