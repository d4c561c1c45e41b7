package errutil

import (
	"errors"
	"net/http"
)

type CoreStatus string

const (
	StatusBadRequest          CoreStatus = "BAD_REQUEST"
	StatusValidationFailed    CoreStatus = "VALIDATION_FAILED"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusConflict            CoreStatus = "CONFLICT"
	StatusUnprocessableEntity CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusTimeout             CoreStatus = "TIMEOUT"
	StatusInternal            CoreStatus = "INTERNAL"
	StatusUnavailable         CoreStatus = "UNAVAILABLE"
	StatusUnknown             CoreStatus = "UNKNOWN"

	// Batch processing
	StatusWorkerCoordination CoreStatus = "WORKER_COORDINATION"
	StatusCashbackUpdate     CoreStatus = "CASHBACK_UPDATE"
	StatusRankingUpdate      CoreStatus = "RANKING_UPDATE"
	StatusMilestoneUpdate    CoreStatus = "MILESTONE_UPDATE"
	StatusIntegrity          CoreStatus = "INTEGRITY"
)

// Retryable reports whether a task failing with this status may be attempted again.
func (s CoreStatus) Retryable() bool {
	switch s {
	case StatusWorkerCoordination, StatusCashbackUpdate, StatusRankingUpdate,
		StatusMilestoneUpdate, StatusIntegrity, StatusBadRequest,
		StatusValidationFailed, StatusNotFound:
		return false
	default:
		return true
	}
}

func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusWorkerCoordination:
		return http.StatusConflict
	case StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HasStatus reports whether err wraps a BaseError carrying code.
func HasStatus(err error, code CoreStatus) bool {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// StatusOf returns the code of the first BaseError in the chain, or StatusUnknown.
func StatusOf(err error) CoreStatus {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return StatusUnknown
}
