package version_test

import (
	"strings"
	"testing"

	v "github.com/keithlinneman/respack/internal/version"
)

func TestVCSDirtyLdflagsWins(t *testing.T) {
	t.Cleanup(func() { v.VCSDirty = nil })

	trueVal := true
	v.VCSDirty = &trueVal
	info := v.Get()
	if info.VCSDirty == nil || *info.VCSDirty != true {
		t.Fatalf("VCSDirty = %v, want true", info.VCSDirty)
	}

	falseVal := false
	v.VCSDirty = &falseVal
	info = v.Get()
	if info.VCSDirty == nil || *info.VCSDirty != false {
		t.Fatalf("VCSDirty = %v, want false", info.VCSDirty)
	}
}

func TestGet_LdflagsValues(t *testing.T) {
	oldV, oldC := v.Version, v.Commit
	t.Cleanup(func() { v.Version, v.Commit = oldV, oldC })

	v.Version = "1.2.3"
	v.Commit = "0123456789abcdef"
	info := v.Get()
	if info.App != "respack" || info.Version != "1.2.3" || info.Commit != "0123456789abcdef" {
		t.Fatalf("info = %+v", info)
	}
}

func TestInfo_String(t *testing.T) {
	dirty := true
	s := v.Info{App: "respack", Version: "1.0.0", Commit: "0123456789abcdef", GoVersion: "go1.24.11", VCSDirty: &dirty}.String()
	want := "respack 1.0.0 (0123456789ab-dirty) go1.24.11"
	if s != want {
		t.Fatalf("String = %q, want %q", s, want)
	}
	if !strings.HasPrefix(v.Get().String(), "respack ") {
		t.Fatal("String should start with the app name")
	}
}
