package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// SevenZipCandidates lists the executable names probed, in preference order,
// when no explicit 7-Zip binary is configured.
var SevenZipCandidates = []string{"7zz", "7z", "7za"}

const sevenZipDescription = "Reads and writes .7z archives"

// ResolveSevenZip locates the 7-Zip executable. A configured command wins and
// is never silently replaced by a PATH lookup: if it cannot be found the
// dependency is reported unavailable.
func ResolveSevenZip(configured string) Status {
	status := Status{
		Name:        "7-Zip",
		Description: sevenZipDescription,
		Optional:    true,
	}

	if cmd := strings.TrimSpace(configured); cmd != "" {
		status.Command = cmd
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("configured binary %q not found", cmd)
			return status
		}
		status.Path = resolved
		status.Available = true
		return status
	}

	for _, candidate := range SevenZipCandidates {
		if resolved, err := exec.LookPath(candidate); err == nil {
			status.Command = candidate
			status.Path = resolved
			status.Available = true
			return status
		}
	}

	status.Command = SevenZipCandidates[0]
	status.Detail = fmt.Sprintf("none of %s found in PATH", strings.Join(SevenZipCandidates, ", "))
	return status
}
