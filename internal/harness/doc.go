// Package harness drives the subject program through an invocation matrix
// and reconciles each run report against the expectation catalog.
//
// # Reconciliation
//
// For every matrix row the orchestrator selects the catalog entries the row
// is expected to run, executes the subject once, parses its XML report and
// pairs each actual test record with its expectation:
//
//   - Reconcile compares result, violation phase and the per-type ordered
//     logs, then hands any predicted files to VerifyArtifacts.
//   - VerifyArtifacts removes the predicted files and the working directory.
//     It is destructive: each artifact set is consumed once.
//   - ReconcileAggregates compares failed/passed counts with the report
//     summary and the subject's exit code.
//
// All discrepancies of a row are collected; a row never stops at the first
// mismatch across tests. An unusable report aborts only its own row.
//
// # Matrix Format
//
//	subject: ./test/testprog
//	args: [-p, apa=katt]
//	report_flag: --xml=yes
//	verbosity:
//	  terse:   {flags: [], results: FAILED}
//	  verbose: {flags: [-v], results: ALL}
//	blocking:
//	  nodeps: {flags: [-n]}
//	  deps:   {exclude_tags: [blocked]}
//	slowness:
//	  quick:    {exclude_tags: [slow, filesystem]}
//	  parallel: {flags: [-c, "8"]}
//	rows:
//	  - {names: [asserts], verbosity: terse, blocking: deps, slowness: quick}
//	probes:
//	  - name: core_dump
//	    args: [-s, asserts::should_fail_void_ptr_eq_ptr]
//	    pre_remove: [core]
//	    files: [core]
//
// DefaultMatrix returns the standard self-test matrix.
package harness
