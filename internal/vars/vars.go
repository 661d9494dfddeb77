// Package vars holds build-time variables populated via the linker (ldflags).
package vars

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

var (
	// Name of the project
	Name = "Matchmaker"

	// Version of application (git tag), e.g. v1.2.3
	Version = "dev"

	// Commit is the git SHA the binary was built from
	Commit = "unknown"

	// Revision is the count of commits
	Revision = 0

	// BuildTime of the binary, RFC3339 UTC
	BuildTime = time.Unix(0, 0).UTC()

	// URL to repository
	URL = "https://github.com/woozymasta/matchmaker"

	_revision  string
	_buildTime string
)

// BuildInfo is the build metadata exposed by /health.
type BuildInfo struct {
	BuildTime   time.Time `json:"build_time"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	CommitShort string    `json:"commit_short,omitempty"`
	URL         string    `json:"url,omitempty"`
	Revision    int       `json:"revision,omitempty"`
}

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}

	if _buildTime != "" {
		if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
			BuildTime = t.UTC()
		}
	}
}

// Print writes the build information to stdout.
func Print() {
	Fprint(os.Stdout)
}

// Fprint writes the build information to w.
func Fprint(w io.Writer) {
	_, _ = fmt.Fprintf(w, `name:     %s
url:      %s
version:  %s
commit:   %s
revision: %d
built:    %s
`, Name, URL, Version, Commit, Revision, BuildTime.Format(time.RFC3339))
}

// Info returns the build metadata.
func Info() BuildInfo {
	return BuildInfo{
		Name:        Name,
		Version:     Version,
		Commit:      Commit,
		CommitShort: CommitShort(),
		Revision:    Revision,
		BuildTime:   BuildTime,
		URL:         URL,
	}
}

// CommitShort returns the first 7 characters of the commit hash.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}

	return Commit
}
