// Package compat decides whether an update may replace an installed app.
//
// CompareManifests gates every update so that a remote payload cannot
// silently swap the identity or the developer attribution of an app the user
// already trusts. The decision is a left fold over independent checks; each
// check either does not apply (the fold continues) or yields a verdict, and
// the first rejecting verdict ends the fold.
//
// Checks are pure: no I/O, no logging, no hidden state.
package compat

import (
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
)

// Reason names the check that rejected an update
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNameMismatch      Reason = "name_mismatch"
	ReasonDeveloperMismatch Reason = "developer_mismatch"
	ReasonDeveloperChanged  Reason = "developer_presence_changed"
)

// Verdict is the outcome of a single check
type Verdict struct {
	Applicable bool
	OK         bool
	Reason     Reason
}

var (
	notApplicable = Verdict{}
	pass          = Verdict{Applicable: true, OK: true}
)

func reject(reason Reason) Verdict {
	return Verdict{Applicable: true, OK: false, Reason: reason}
}

// Check inspects one aspect of an update against the installed descriptor
type Check func(update, installed manifest.Descriptor) Verdict

// DefaultChecks is the ordered check chain. New compatibility rules are
// appended here.
var DefaultChecks = []Check{
	CheckName,
	CheckDeveloper,
}

// CompareManifests reports whether update is a compatible successor of the
// installed manifest. A nil installed manifest (fresh install) is always
// compatible.
func CompareManifests(update *manifest.UpdateManifest, installed *manifest.Manifest) bool {
	ok, _ := Explain(update, installed)
	return ok
}

// Explain is CompareManifests with the reason of a rejection
func Explain(update *manifest.UpdateManifest, installed *manifest.Manifest) (bool, Reason) {
	if update == nil {
		return false, ReasonNameMismatch
	}
	if installed == nil {
		return true, ReasonNone
	}
	return Evaluate(DefaultChecks, update, installed)
}

// Evaluate folds checks left to right and stops at the first rejection
func Evaluate(checks []Check, update, installed manifest.Descriptor) (bool, Reason) {
	for _, check := range checks {
		verdict := check(update, installed)
		if verdict.Applicable && !verdict.OK {
			return false, verdict.Reason
		}
	}
	return true, ReasonNone
}

// CheckName rejects any change of the app name
func CheckName(update, installed manifest.Descriptor) Verdict {
	if update.Name() != installed.Name() {
		return reject(ReasonNameMismatch)
	}
	return pass
}

// CheckDeveloper compares developer attribution when both descriptors carry
// a b2g_features block. Both present must be structurally equal; presence on
// only one side is a change of attribution; absence on both sides passes.
func CheckDeveloper(update, installed manifest.Descriptor) Verdict {
	updateFeatures, ok := update.B2GFeatures()
	if !ok {
		return notApplicable
	}
	installedFeatures, ok := installed.B2GFeatures()
	if !ok {
		return notApplicable
	}

	updateDev, updateHas := updateFeatures.Developer()
	installedDev, installedHas := installedFeatures.Developer()

	switch {
	case updateHas && installedHas:
		if !updateDev.Equal(installedDev) {
			return reject(ReasonDeveloperMismatch)
		}
		return pass
	case updateHas != installedHas:
		return reject(ReasonDeveloperChanged)
	default:
		// Neither side names a developer; later checks may still apply.
		return pass
	}
}
