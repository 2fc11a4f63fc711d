package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/planner"
)

// StatusFor maps a planner error kind to an HTTP status
func StatusFor(kind planner.Kind) int {
	switch kind {
	case planner.KindConflict:
		return http.StatusConflict
	case planner.KindIncompatible, planner.KindVerification:
		return http.StatusUnprocessableEntity
	case planner.KindParse, planner.KindInvalidPackageURI:
		return http.StatusBadRequest
	case planner.KindDownload:
		return http.StatusBadGateway
	case planner.KindUninstallForbidden:
		return http.StatusForbidden
	case planner.KindNotFound:
		return http.StatusNotFound
	case planner.KindCanceled:
		return 499
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	AppID  string `json:"app_id,omitempty"`
	Phase  string `json:"phase,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func respondError(c *gin.Context, err error) {
	kind := planner.KindOf(err)
	body := ErrorResponse{Error: err.Error(), Kind: string(kind)}

	var perr *planner.Error
	if errors.As(err, &perr) {
		body.AppID = perr.AppID
		body.Phase = string(perr.Phase)
	}
	var incompatible *planner.IncompatibleError
	if errors.As(err, &incompatible) {
		body.Reason = string(incompatible.Reason)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(kind), body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Kind: string(planner.KindParse)})
}
