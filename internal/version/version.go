// Package version reports the httptxn build identity.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/httptxn"

// buildVersion is set via -ldflags "-X pkt.systems/httptxn/internal/version.buildVersion=...".
var buildVersion = ""

// Info is the structured form printed by `httptxn version --output json|yaml`.
type Info struct {
	Module          string `json:"module" yaml:"module"`
	Version         string `json:"version" yaml:"version"`
	GoVersion       string `json:"go_version" yaml:"go_version"`
	ProtocolVersion int    `json:"protocol_version" yaml:"protocol_version"`
}

// Describe gathers the build identity; protocol is the wire protocol version
// the binary speaks.
func Describe(protocol int) Info {
	return Info{
		Module:          Module(),
		Version:         Current(),
		GoVersion:       runtime.Version(),
		ProtocolVersion: protocol,
	}
}

// Current returns the best available version string.
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
		if v := pseudoVersion(info.Settings); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// pseudoVersion derives a Go-style pseudo version from VCS stamping.
func pseudoVersion(settings []debug.BuildSetting) string {
	var revision, stamp string
	var modified bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			stamp = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" || stamp == "" {
		return ""
	}
	when, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + when.UTC().Format("20060102150405") + "-" + revision
	if modified {
		v += "+dirty"
	}
	return v
}
