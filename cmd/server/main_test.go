package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLatestSnapshot_PicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"900.snap.zst", "3000.snap.zst", "abc.snap.zst", "6000.tmp"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "3000.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir latest=%q", got)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("RTSIM_TEST_FLAG", "false")
	if envBool("RTSIM_TEST_FLAG", true) {
		t.Fatalf("explicit false ignored")
	}
	t.Setenv("RTSIM_TEST_FLAG", "nonsense")
	if !envBool("RTSIM_TEST_FLAG", true) {
		t.Fatalf("bad value should keep default")
	}
}
