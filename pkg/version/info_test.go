package version

import (
	"runtime/debug"
	"testing"
)

func withBuild(t *testing.T, appVersion, commit, buildTime string, bi *debug.BuildInfo) {
	t.Helper()
	oldVersion, oldCommit, oldBuildTime, oldRead := AppVersion, GitCommit, BuildTime, readBuildInfo
	t.Cleanup(func() {
		AppVersion, GitCommit, BuildTime, readBuildInfo = oldVersion, oldCommit, oldBuildTime, oldRead
	})
	AppVersion, GitCommit, BuildTime = appVersion, commit, buildTime
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
}

func TestCurrent_Defaults(t *testing.T) {
	withBuild(t, " ", "", "", nil)
	info := Current("")
	want := Info{Service: Unknown, Version: DevelopmentVersion, Commit: Unknown, BuildTime: Unknown}
	if info != want {
		t.Fatalf("info = %+v", info)
	}
}

func TestCurrent_LdflagsWin(t *testing.T) {
	withBuild(t, "v1.4.0", "abc123", "2026-01-02T03:04:05Z", &debug.BuildInfo{
		GoVersion: "go1.24.0",
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "fromvcs"},
			{Key: "vcs.time", Value: "2020-01-01T00:00:00Z"},
		},
	})
	info := Current("eventsvc")
	if info.Commit != "abc123" || info.BuildTime != "2026-01-02T03:04:05Z" || info.GoVersion != "go1.24.0" {
		t.Fatalf("info = %+v", info)
	}
	if info.String() != "eventsvc@v1.4.0 (commit=abc123, build_time=2026-01-02T03:04:05Z)" {
		t.Fatalf("String = %q", info.String())
	}
}

func TestCurrent_FallsBackToVCSStamp(t *testing.T) {
	withBuild(t, "", "", "", &debug.BuildInfo{
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "deadbeef"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		},
	})
	info := Current("eventsvc")
	if info.Commit != "deadbeef" || info.BuildTime != "2026-10-01T12:00:00Z" {
		t.Fatalf("info = %+v", info)
	}
}
