// Package catalog holds the hand-authored table of expected subject outcomes.
//
// Each subject test is described by an ExpectedOutcome: the result it must
// report, the lifecycle phase of a failure, the ordered log output per
// channel and the filesystem artifacts it leaves behind in its working
// directory. A Catalog is immutable once loaded; reconciliation works on a
// WorkingSet cloned from it, which is depleted as actual records are paired
// with their expectations.
//
// # File Format
//
// Catalogs are authored as YAML or CUE documents:
//
//	default_flavor: re2
//	tests:
//	  asserts::should_fail_on_assert_eq:
//	    result: FAILED
//	    phase: running
//	    logs:
//	      - violation: '/ASSERT_EQ\(num, 3\)\s+where\s+num\s*=\s*4/m'
//	  asserts::should_succeed_assert_no_throw:
//	    result: PASSED
//	    logs:
//	      - stdout: '/i=.*/'
//
// Patterns written as /body/flags are regular expressions; anything else is a
// literal that must occur in the text.
package catalog
