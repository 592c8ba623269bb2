package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of prep-pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := debug.ReadBuildInfo()
		fmt.Println(versionString(version, info))
	},
}

// versionString formats the release version with the VCS revision and Go
// toolchain recorded in the binary, when available.
func versionString(v string, info *debug.BuildInfo) string {
	goVersion := runtime.Version()
	revision := ""
	dirty := false
	if info != nil {
		if info.GoVersion != "" {
			goVersion = info.GoVersion
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
	}
	out := "prep-pipeline " + v
	if revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}
		if dirty {
			revision += "-dirty"
		}
		out += " (" + revision + ")"
	}
	return out + " " + goVersion + " " + runtime.GOOS + "/" + runtime.GOARCH
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
