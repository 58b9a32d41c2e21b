package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

// Name is the product name reported by the server and the CLI.
const Name = "robopanel"

// Version values are set at build time using -ldflags.
var Version = "dev"
var Major = "0"
var Minor = "0"
var Patch = "0"
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
}

func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Name:      Name,
		Version:   Version,
		Major:     parseInt(Major),
		Minor:     parseInt(Minor),
		Patch:     parseInt(Patch),
		Built:     Built,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
	if info.GitCommit == "" {
		info.GitCommit = vcsRevision()
	}
	return info
}

// String renders the one-line banner printed by --version.
func (v VersionInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", v.Name, v.Version)
	if v.GitCommit != "" {
		commit := v.GitCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Fprintf(&b, " (%s)", commit)
	}
	if v.Built != "" {
		fmt.Fprintf(&b, " built %s", v.Built)
	}
	fmt.Fprintf(&b, " %s", v.GoVersion)
	return b.String()
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return ""
}

func parseInt(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
