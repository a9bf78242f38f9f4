// Package buildinfo reports what binary is running: version, commit and the
// build mode the binary was produced with.
package buildinfo

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

const (
	ModeDebug   = "debug"
	ModeRelease = "release"
)

// Set with -ldflags "-X github.com/saiset-co/sai-assets/buildinfo.Version=...".
var (
	Version   = ""
	GitCommit = ""
	Mode      = ""
)

type Info struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	GitBranch string    `json:"git_branch"`
	BuildTime time.Time `json:"build_time"`
	Mode      string    `json:"mode"`
	GoVersion string    `json:"go_version"`
	OS        string    `json:"os"`
	Arch      string    `json:"arch"`
}

// Read merges link-time values, BUILD_* environment variables and an optional
// build.info file. Later sources win.
func Read() *Info {
	info := &Info{
		Version:   firstNonEmpty(os.Getenv("BUILD_VERSION"), Version, "dev"),
		GitCommit: firstNonEmpty(os.Getenv("BUILD_COMMIT"), GitCommit, "unknown"),
		GitBranch: firstNonEmpty(os.Getenv("BUILD_BRANCH"), "unknown"),
		Mode:      Mode,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	if buildTime, err := time.Parse(time.RFC3339, os.Getenv("BUILD_TIME")); err == nil {
		info.BuildTime = buildTime
	}

	if fileInfo := readFile(); fileInfo != nil {
		info.merge(fileInfo)
	}

	return info
}

func (i *Info) String() string {
	commit := i.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s-%s (%s)", i.Version, commit, i.BuildTime.Format("2006-01-02"))
}

// IsDebug reports whether the binary was explicitly built in debug mode.
// Anything else, including an empty or unreadable mode, counts as release.
func (i *Info) IsDebug() bool {
	return strings.EqualFold(strings.TrimSpace(i.Mode), ModeDebug)
}

func (i *Info) merge(other *Info) {
	if other.Version != "" {
		i.Version = other.Version
	}
	if other.GitCommit != "" {
		i.GitCommit = other.GitCommit
	}
	if other.GitBranch != "" {
		i.GitBranch = other.GitBranch
	}
	if other.Mode != "" {
		i.Mode = other.Mode
	}
	if !other.BuildTime.IsZero() {
		i.BuildTime = other.BuildTime
	}
}

func readFile() *Info {
	paths := []string{
		"build.info",
		"../build.info",
		"/app/build.info",
	}

	for _, path := range paths {
		if data, err := os.ReadFile(path); err == nil {
			return Parse(string(data))
		}
	}

	return nil
}

// Parse reads KEY=VALUE lines. Unknown keys and comments are ignored.
func Parse(content string) *Info {
	info := &Info{}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "VERSION":
			info.Version = value
		case "GIT_COMMIT":
			info.GitCommit = value
		case "GIT_BRANCH":
			info.GitBranch = value
		case "BUILD_MODE":
			info.Mode = value
		case "BUILD_TIME":
			if buildTime, err := time.Parse(time.RFC3339, value); err == nil {
				info.BuildTime = buildTime
			}
		}
	}

	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
