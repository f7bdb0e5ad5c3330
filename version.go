package goadsdev

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 3

	// VersionPatch is the patch version number. READ_DEVICE_INFO reports it
	// as the build number when no device version is configured.
	VersionPatch = 0

	// VersionPrerelease is the pre-release suffix ("rc.1"), empty for releases.
	VersionPrerelease = ""
)

// shortCommit is the number of revision characters kept in BuildInfo.
const shortCommit = 7

// Version returns the semantic version string of the server.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	if VersionPrerelease != "" {
		v += "-" + VersionPrerelease
	}
	return v
}

// DefaultDeviceVersion is the version tuple a device answers with unless
// WithVersion overrides it.
func DefaultDeviceVersion() DeviceVersion {
	return DeviceVersion{Major: VersionMajor, Minor: VersionMinor, Build: VersionPatch}
}

// BuildInfo describes the running binary. It is what `goadsdev version`
// prints and what the admin API reports under "build".
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	GitTag    string `json:"git_tag,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// GetBuildInfo returns Version plus whatever VCS stamping the toolchain
// embedded in the binary.
func GetBuildInfo() BuildInfo {
	bi, _ := debug.ReadBuildInfo()
	return buildInfoFrom(bi)
}

func buildInfoFrom(bi *debug.BuildInfo) BuildInfo {
	info := BuildInfo{Version: Version()}
	if bi == nil {
		return info
	}

	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.GitCommit = s.Value
			if len(s.Value) > shortCommit {
				info.GitCommit = s.Value[:shortCommit]
			}
		case "vcs.time":
			info.BuildTime = s.Value
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	// "(devel)" is what a plain `go build` inside the module reports.
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.GitTag = v
	}
	return info
}

// String formats b as "goadsdev 0.3.0 (commit: abc1234-dirty) [v0.3.0] - go1.24".
func (b BuildInfo) String() string {
	var sb strings.Builder
	sb.WriteString("goadsdev ")
	sb.WriteString(b.Version)

	if b.GitCommit != "" {
		sb.WriteString(" (commit: ")
		sb.WriteString(b.GitCommit)
		if b.Dirty {
			sb.WriteString("-dirty")
		}
		sb.WriteString(")")
	}
	if b.GitTag != "" {
		fmt.Fprintf(&sb, " [%s]", b.GitTag)
	}
	if b.GoVersion != "" {
		sb.WriteString(" - ")
		sb.WriteString(b.GoVersion)
	}
	return sb.String()
}
