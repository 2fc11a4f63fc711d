package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/compat"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

// Kind classifies transition failures
type Kind string

const (
	KindParse              Kind = "parse"
	KindIncompatible       Kind = "incompatible_manifest"
	KindInvalidPackageURI  Kind = "invalid_package_uri"
	KindDownload           Kind = "download"
	KindVerification       Kind = "verification"
	KindInstall            Kind = "install"
	KindConflict           Kind = "conflict"
	KindRegistry           Kind = "registry"
	KindNotFound           Kind = "not_found"
	KindUninstallForbidden Kind = "uninstall_forbidden"
	KindCanceled           Kind = "canceled"
	KindInternal           Kind = "internal"
)

var (
	ErrNotInstalled       = errors.New("app is not installed")
	ErrUninstallForbidden = errors.New("app cannot be uninstalled")
	ErrNoUpdateURL        = errors.New("app has no update url")
	ErrInvalidURI         = errors.New("not an absolute uri")
)

// Error is a failed transition
type Error struct {
	Kind  Kind
	Op    Op
	AppID string
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	target := e.AppID
	if target == "" {
		target = "app"
	}
	if e.Phase != "" {
		return fmt.Sprintf("%s %s failed while %s (%s): %v", e.Op, target, e.Phase, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Op, target, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IncompatibleError is returned when the comparator rejects an update
type IncompatibleError struct {
	Reason compat.Reason
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("update is not compatible with the installed app: %s", e.Reason)
}

// KindOf maps any error to its kind
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return classify(err)
}

// classify derives a kind from the error chain of a collaborator
func classify(err error) Kind {
	var parseErr *manifest.ParseError
	var incompatible *IncompatibleError
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, registry.ErrConflict):
		return KindConflict
	case errors.Is(err, registry.ErrStorage), errors.Is(err, registry.ErrGuardReleased), errors.Is(err, registry.ErrClosed):
		return KindRegistry
	case errors.Is(err, ErrNotInstalled):
		return KindNotFound
	case errors.Is(err, ErrUninstallForbidden):
		return KindUninstallForbidden
	case errors.As(err, &incompatible):
		return KindIncompatible
	case errors.As(err, &parseErr), errors.Is(err, utils.ErrInvalidAppName):
		return KindParse
	case errors.Is(err, ErrInvalidURI), errors.Is(err, ErrNoUpdateURL):
		return KindInvalidPackageURI
	}
	return KindInternal
}
