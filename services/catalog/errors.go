// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/openapi"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeCycleDetected    = "CYCLE_DETECTED"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeFetchFailed      = "FETCH_FAILED"
	CodeTimeout          = "TIMEOUT"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is a human readable message.
	Error string `json:"error"`

	// Code is a stable machine readable code.
	Code string `json:"code"`

	// Details carries structured context, e.g. the two services of a
	// rejected cycle.
	Details map[string]any `json:"details,omitempty"`
}

// classify maps an error to its status code and ErrorResponse.
func classify(err error) (int, ErrorResponse) {
	var cycle *model.CycleError
	switch {
	case errors.As(err, &cycle):
		details := map[string]any{"from": cycle.From, "to": cycle.To}
		if cycle.Environment != nil {
			details["environmentCode"] = *cycle.Environment
		}
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeCycleDetected, Details: details}
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound}
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeConflict}
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest}
	case errors.Is(err, model.ErrStoreFailure):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "record store unavailable, retry the request", Code: CodeStoreUnavailable}
	case errors.Is(err, openapi.ErrFetchFailed):
		return http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: CodeFetchFailed}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out", Code: CodeTimeout}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal}
	}
}

// respondError writes err as an ErrorResponse. Domain errors are logged at
// Warn, everything else at Error.
func respondError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err, "status", status)
	} else {
		logger.Warn(msg, "error", err, "status", status)
	}
	c.JSON(status, body)
}

// respondBadRequest writes a 400 for a body or parameter that failed to bind.
func respondBadRequest(c *gin.Context, logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: msg,
		Code:  CodeInvalidRequest,
		Details: map[string]any{
			"reason": err.Error(),
		},
	})
}
