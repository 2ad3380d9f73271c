package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time with -ldflags "-X srcwatch/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	Built     = ""
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	Built     string `json:"built,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get returns the linker-provided values, falling back to the VCS stamps
// the go command embeds when the binary was built from a checkout.
func Get() Info {
	info := Info{Version: Version, GitCommit: GitCommit, Built: Built}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fromBuildInfo(info, build)
}

func fromBuildInfo(info Info, build *debug.BuildInfo) Info {
	info.GoVersion = build.GoVersion
	if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = setting.Value
			}
		case "vcs.time":
			if info.Built == "" {
				info.Built = setting.Value
			}
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		}
	}
	return info
}

func (info Info) String() string {
	out := "srcwatch " + info.Version
	if info.GitCommit != "" {
		commit := info.GitCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		if info.Modified {
			commit += "-dirty"
		}
		out += fmt.Sprintf(" (%s)", commit)
	}
	if info.Built != "" {
		out += " built " + info.Built
	}
	if info.GoVersion != "" {
		out += " " + info.GoVersion
	}
	return out
}
