package config

import (
	"path/filepath"
	"testing"
)

func TestLoadAndResolveDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abi.toml")
	if err := WriteExample(path); err != nil {
		t.Fatalf("WriteExample: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := f.Resolve("")
	if err != nil {
		t.Fatalf("Resolve(\"\"): %v", err)
	}
	if p.TargetWordSize != 8 || p.BigEndian {
		t.Errorf("default profile = %+v, want host64", p)
	}

	p2, err := f.Resolve("arm-be32")
	if err != nil {
		t.Fatalf("Resolve(arm-be32): %v", err)
	}
	if p2.TargetWordSize != 4 || !p2.BigEndian {
		t.Errorf("arm-be32 profile = %+v, want 4-byte big-endian", p2)
	}
}

func TestResolveUnknownProfile(t *testing.T) {
	f := &File{Profiles: map[string]Profile{}}
	if _, err := f.Resolve("nope"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestResolveNoDefaultNoName(t *testing.T) {
	f := &File{Profiles: map[string]Profile{"x": {}}}
	if _, err := f.Resolve(""); err == nil {
		t.Fatal("expected error when no name given and no default set")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error loading missing file")
	}
}
