package planner

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/id"
)

// Phase of a transition
type Phase string

const (
	PhaseNotInstalled Phase = "not_installed"
	PhaseFetching     Phase = "fetching"
	PhaseComparing    Phase = "comparing"
	PhaseDownloading  Phase = "downloading"
	PhaseVerifying    Phase = "verifying"
	PhaseInstalling   Phase = "installing"
	PhaseCommitting   Phase = "committing"
	PhaseInstalled    Phase = "installed"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether no further phase follows
func (p Phase) Terminal() bool {
	return p == PhaseInstalled || p == PhaseFailed || p == PhaseNotInstalled
}

// Op names a planner operation
type Op string

const (
	OpInstall   Op = "install"
	OpUpdate    Op = "update"
	OpUninstall Op = "uninstall"
	OpStatus    Op = "set_status"
	OpCheck     Op = "check"
	OpSeed      Op = "seed"
)

// Progress is the last observed state of an app's most recent transition
type Progress struct {
	AppID        string          `json:"app_id"`
	TransitionID id.TransitionID `json:"transition_id"`
	Op           Op              `json:"op"`
	Phase        Phase           `json:"phase"`
	Attempt      int             `json:"attempt,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorKind    Kind            `json:"error_kind,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
