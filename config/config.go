// Package config loads named target-ABI profiles from a TOML file, so a
// build pipeline can select "arm64-embedded" or "x86-64-desktop" by name
// instead of hard-coding word sizes and byte order at each call site.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Profile is one target ABI's on-disk description.
type Profile struct {
	TargetWordSize    int  `toml:"target_word_size"`
	TargetBitsPerWord int  `toml:"target_bits_per_word"`
	BigEndian         bool `toml:"big_endian"`
}

// File is the top-level shape of an ABI profile file: a table of named
// profiles plus which one applies when none is given on the command line.
type File struct {
	Default  string             `toml:"default"`
	Profiles map[string]Profile `toml:"profile"`
}

// Load reads and parses an ABI profile file from path.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &f, nil
}

// Resolve returns the named profile, or the file's default profile when
// name is empty.
func (f *File) Resolve(name string) (Profile, error) {
	if name == "" {
		name = f.Default
	}
	if name == "" {
		return Profile{}, fmt.Errorf("config: no profile name given and no default set")
	}
	p, ok := f.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("config: unknown ABI profile %q", name)
	}
	return p, nil
}

// WriteExample writes a starter profile file to path, covering the two
// conventional native profiles plus one cross-target example.
func WriteExample(path string) error {
	const example = `default = "host64"

[profile.host32]
target_word_size = 4
target_bits_per_word = 32
big_endian = false

[profile.host64]
target_word_size = 8
target_bits_per_word = 64
big_endian = false

[profile.arm-be32]
target_word_size = 4
target_bits_per_word = 32
big_endian = true
`
	return os.WriteFile(path, []byte(example), 0o644)
}
