// Package version reports the build version of the mt binary.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/mounttab"

// buildVersion is set via -ldflags "-X pkt.systems/mounttab/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Module    string
	Version   string
	Revision  string
	Time      time.Time
	Modified  bool
	GoVersion string
}

// Current returns the best available version string without a dirty suffix.
func Current() string {
	return Read().Version
}

// Read collects build information from the linker flag and the embedded
// build info.
func Read() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, buildVersion)
}

func fromBuildInfo(info *debug.BuildInfo, override string) Info {
	out := Info{Module: defaultModule, Version: "v0.0.0-unknown"}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		out.GoVersion = info.GoVersion
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = setting.Value
			case "vcs.time":
				if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					out.Time = parsed.UTC()
				}
			case "vcs.modified":
				out.Modified = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(override) != "":
		out.Version = strings.TrimSuffix(strings.TrimSpace(override), "+dirty")
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = strings.TrimSuffix(info.Main.Version, "+dirty")
	case out.Revision != "" && !out.Time.IsZero():
		out.Version = out.pseudo()
	}
	return out
}

func (i Info) pseudo() string {
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + i.Time.Format("20060102150405") + "-" + rev
}

// String renders the info the way `mt version` prints it.
func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Version)
	if i.Modified {
		b.WriteString("+dirty")
	}
	if i.Revision != "" {
		fmt.Fprintf(&b, " (%s", i.Revision)
		if !i.Time.IsZero() {
			fmt.Fprintf(&b, " %s", i.Time.Format(time.RFC3339))
		}
		b.WriteString(")")
	}
	if i.GoVersion != "" {
		fmt.Fprintf(&b, " %s", i.GoVersion)
	}
	return b.String()
}
