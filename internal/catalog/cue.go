package catalog

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// ParseCUE evaluates a CUE catalog document and decodes its concrete value.
//
// The document must evaluate to the same structure as the YAML form, for
// example:
//
//	tests: "asserts::should_fail_on_assert_eq": {
//		result: "FAILED"
//		phase:  "running"
//		logs: [{violation: #"/ASSERT_EQ\(num, 3\)/m"#}]
//	}
//
// CUE definitions and comprehensions may be used to share patterns between
// entries; only the exported concrete value is decoded.
func ParseCUE(filename string, data []byte) (*File, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %s", errors.Details(err, nil))
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE value is not concrete: %s", errors.Details(err, nil))
	}

	// Round-trip through JSON so that LogEntry's shorthand form decodes the
	// same way as in YAML.
	data, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("exporting CUE value: %w", err)
	}
	return ParseJSON(data)
}
