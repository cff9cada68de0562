// Package preflight provides readiness checks for the external services
// and filesystem paths the pipeline depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and reports failures before the
//     workflow manager touches the queue.
//   - The CLI "reel status" command uses individual check functions
//     (CheckDirectoryAccess, CheckAccountAuth) to display service health.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
