// Package preflight provides readiness checks for the directories, external
// binaries, and store the pipeline workers depend on.
//
// The "aperture doctor" command runs RunAll and CheckSystemDeps and renders
// the results. Stage workers run their own narrower HealthCheck before the
// first claim; preflight is the operator-facing superset that also covers
// paths and free space.
package preflight
