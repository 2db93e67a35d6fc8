package subject

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CoreDumpRemediation is printed when the environment forbids core dumps.
const CoreDumpRemediation = `You must allow core dumps for the self test to succeed.
Do that by issuing the command:
> ulimit -c 100000`

// PreconditionError reports an environment that cannot produce the artifacts
// the catalog expects. It aborts the whole run before any row executes.
type PreconditionError struct {
	Check       string
	Reason      string
	Remediation string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition %s failed: %s", e.Check, e.Reason)
}

// Precondition is an environment check performed once before the matrix.
type Precondition interface {
	Name() string
	Check(ctx context.Context) error
}

// CoreDumpCheck verifies that the shell's core file size limit allows crash
// artifacts to be written.
type CoreDumpCheck struct {
	Runner Runner
}

// Name implements Precondition.
func (c *CoreDumpCheck) Name() string {
	return "core-dumps"
}

// Check implements Precondition.
func (c *CoreDumpCheck) Check(ctx context.Context) error {
	res, err := c.Runner.Run(ctx, "ulimit -c")
	if err != nil {
		return fmt.Errorf("query core file limit: %w", err)
	}
	limit := strings.TrimSpace(string(res.Stdout))
	if res.ExitCode != 0 {
		return fmt.Errorf("query core file limit: exit status %d", res.ExitCode)
	}
	if coreDumpsAllowed(limit) {
		return nil
	}
	return &PreconditionError{
		Check:       c.Name(),
		Reason:      fmt.Sprintf("core file size limit is %q", limit),
		Remediation: CoreDumpRemediation,
	}
}

func coreDumpsAllowed(limit string) bool {
	if limit == "unlimited" {
		return true
	}
	n, err := strconv.ParseInt(limit, 10, 64)
	return err == nil && n > 0
}
