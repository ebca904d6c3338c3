package web

import "sync/atomic"

// BuildInfo identifies the running binary in /health and /api/system
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

var build atomic.Pointer[BuildInfo]

func init() {
	build.Store(&BuildInfo{Version: "dev", Commit: "unknown", BuildTime: "unknown"})
}

// SetVersionInfo records the ldflags stamped into main
func SetVersionInfo(version, commit, buildTime string) {
	build.Store(&BuildInfo{Version: version, Commit: commit, BuildTime: buildTime})
}

func currentBuild() BuildInfo {
	return *build.Load()
}
