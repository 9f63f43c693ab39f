package internal

import (
	"log/slog"
	"testing"
)

func TestConfigure(t *testing.T) {
	defer Configure(false, false, false)

	tests := []struct {
		name               string
		quiet, debug, verb bool
		want               slog.Level
	}{
		{name: "default", want: slog.LevelInfo},
		{name: "quiet", quiet: true, want: slog.LevelWarn},
		{name: "debug", debug: true, want: slog.LevelDebug},
		{name: "debug wins", quiet: true, debug: true, want: slog.LevelDebug},
		{name: "verbose", verb: true, want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Configure(tt.quiet, tt.debug, tt.verb)

			if got := LogLevel().Level(); got != tt.want {
				t.Fatalf("level = %v, want %v", got, tt.want)
			}
			if IsVerbose() != tt.verb {
				t.Fatalf("IsVerbose() = %v, want %v", IsVerbose(), tt.verb)
			}
			if IsQuiet() != (tt.want == slog.LevelWarn) {
				t.Fatalf("IsQuiet() = %v at %v", IsQuiet(), tt.want)
			}
			if IsDebug() != (tt.want == slog.LevelDebug) {
				t.Fatalf("IsDebug() = %v at %v", IsDebug(), tt.want)
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	for raw, want := range map[string]bool{"true": true, "1": true, "false": false, "": false, "yes": false} {
		if got := parseFlag(raw); got != want {
			t.Fatalf("parseFlag(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestVersionString(t *testing.T) {
	defer func(v, s, c string) { version, stage, gitCommit = v, s, c }(version, stage, gitCommit)

	version, stage, gitCommit = "", "", ""
	if got := VersionString(); got != "(local)" {
		t.Fatalf("VersionString() = %q, want (local)", got)
	}

	version, stage, gitCommit = "V1.2.0", "main", "a1b2c3d"
	if got, want := VersionString(), "1.2.0 a1b2c3d ["+Arch()+"]"; got != want {
		t.Fatalf("VersionString() = %q, want %q", got, want)
	}

	stage = "Staging"
	if got, want := VersionString(), "1.2.0+staging a1b2c3d ["+Arch()+"]"; got != want {
		t.Fatalf("VersionString() = %q, want %q", got, want)
	}
}

func TestInfo(t *testing.T) {
	defer func(v, s, c string) { version, stage, gitCommit = v, s, c }(version, stage, gitCommit)

	version, stage, gitCommit = "", "dev", ""
	info := Info()
	if !info.Local {
		t.Fatal("Local = false, want true")
	}
	if info.Version != "(undefined)" || info.Commit != "(undefined)" {
		t.Fatalf("info = %+v, want undefined version and commit", info)
	}
	if info.Stage != "dev" {
		t.Fatalf("Stage = %q, want dev", info.Stage)
	}
}
