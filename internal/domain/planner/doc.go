// Package planner drives app transitions through their phases.
//
// An install or update walks
//
//	Fetching -> Comparing -> Downloading -> Verifying -> Installing -> Committing -> Installed
//
// and any phase may end in Failed. Exactly one transition per app runs at a
// time; the registry lock is taken before anything is written and released
// by commit or rollback. Every failure discards what the attempt produced
// and leaves the previously committed record and content untouched.
//
// Only downloads are retried, with exponential backoff. Verification,
// installation and comparison failures are terminal for the attempt.
// Cancellation through the caller's context is honoured until the commit
// begins; from then on the commit runs to completion.
//
// All failures are returned as *Error carrying a Kind, so callers can tell a
// rejected update from one that merely could not be retrieved.
package planner
