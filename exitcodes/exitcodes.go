// Package exitcodes defines the standard exit codes used by stepflow.
package exitcodes

// Exit code constants used by stepflow
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when all scenarios pass
// * ScenarioFailure (1): Used when one or more scenarios fail
// * RuntimeErr (2): Used for runtime errors during execution, such as panics
// * InitErr (3): Used when configuration or initialization fails before planning
// * DiscoveryErr (4): Used when no feature set could be discovered/loaded
//
// The four failure classes stay mutually distinguishable at the process
// boundary so callers can tell "tests ran and some failed" apart from the
// engine itself failing.
const (
	Success         = 0 // All scenarios pass
	ScenarioFailure = 1 // Scenario failures
	RuntimeErr      = 2 // Runtime errors during execution
	InitErr         = 3 // Configuration/initialization failures
	DiscoveryErr    = 4 // Feature discovery failures
)
