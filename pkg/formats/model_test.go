package formats

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const walkerYAML = `
name: walker
global_loops: [2000]
key_bones:
  main: 0
  head: 1
sequences:
  - animation: 4
    duration: 1000
    blend_in: 200
    flags: [loop, blend]
  - animation: 4
    sub_id: 1
    duration: 800
    next_variation: 0
  - animation: 0
    duration: 500
    flags: [alias]
bones:
  - pivot: [0, 1, 0]
    translation:
      tracks:
        - sequence: 0
          keys:
            - {t: 0, v: [0, 0, 0]}
            - {t: 1000, v: [1, 0, 0]}
  - parent: 0
    rotation:
      global_loop: 0
      tracks:
        - keys:
            - {t: 0, v: [0, 0, 0, 1]}
            - {t: 2000, v: [0, 1, 0, 0]}
texture_transforms:
  - translation:
      tracks:
        - sequence: 0
          keys:
            - {t: 0, v: [0, 0, 0]}
`

func TestParseModel(t *testing.T) {
	m, err := ParseModel([]byte(walkerYAML))
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}

	if m.Name != "walker" {
		t.Errorf("expected name walker, got %q", m.Name)
	}
	if len(m.Bones) != 2 || len(m.Sequences) != 3 || len(m.TextureTransforms) != 1 {
		t.Fatalf("unexpected counts: bones=%d sequences=%d texture transforms=%d",
			len(m.Bones), len(m.Sequences), len(m.TextureTransforms))
	}

	// Bone defaults
	if m.Bones[0].Parent != -1 {
		t.Errorf("root parent should default to -1, got %d", m.Bones[0].Parent)
	}
	if !m.Bones[0].Transformed {
		t.Error("bones should default to transformed")
	}
	if m.Bones[1].Parent != 0 {
		t.Errorf("child parent: got %d, want 0", m.Bones[1].Parent)
	}
	if m.Bones[0].Pivot != [3]float32{0, 1, 0} {
		t.Errorf("pivot: got %v", m.Bones[0].Pivot)
	}

	// Tracks
	keys := m.Bones[0].Translation.Tracks[0].Keys
	if len(keys) != 2 || keys[1].Time != 1000 || keys[1].Value != [3]float32{1, 0, 0} {
		t.Errorf("unexpected translation keys: %+v", keys)
	}
	rot := m.Bones[1].Rotation
	if rot.GlobalLoop == nil || *rot.GlobalLoop != 0 {
		t.Errorf("expected rotation driven by global loop 0, got %v", rot.GlobalLoop)
	}

	// Sequences
	if !m.Sequences[0].Flags.Has(SequenceLoop | SequenceBlend) {
		t.Errorf("sequence 0 flags: got %b", m.Sequences[0].Flags)
	}
	if m.Sequences[0].NextVariation != -1 {
		t.Errorf("next variation should default to -1, got %d", m.Sequences[0].NextVariation)
	}
	if m.Sequences[1].NextVariation != 0 {
		t.Errorf("sequence 1 next variation: got %d, want 0", m.Sequences[1].NextVariation)
	}
	if !m.Sequences[2].Flags.Has(SequenceAlias) {
		t.Error("sequence 2 should be an alias")
	}

	// Key bones
	if m.KeyBones[KeyBoneMain] != 0 || m.KeyBones[KeyBoneHead] != 1 {
		t.Errorf("unexpected key bones: %v", m.KeyBones)
	}
	if !m.HasAnimation() {
		t.Error("HasAnimation should be true")
	}
}

func TestParseModel_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name: "child before parent",
			yaml: `
bones:
  - parent: 1
  - {}
`,
			wantErr: ErrInvalidBoneOrder,
		},
		{
			name: "unsorted keys",
			yaml: `
sequences: [{animation: 1, duration: 10}]
bones:
  - scale:
      tracks:
        - keys: [{t: 5, v: [1, 1, 1]}, {t: 1, v: [1, 1, 1]}]
`,
			wantErr: ErrUnsortedKeyframes,
		},
		{
			name: "unknown sequence",
			yaml: `
sequences: [{animation: 1, duration: 10}]
bones:
  - translation:
      tracks:
        - sequence: 3
          keys: [{t: 0, v: [0, 0, 0]}]
`,
			wantErr: ErrUnknownSequence,
		},
		{
			name: "unknown global loop",
			yaml: `
bones:
  - rotation:
      global_loop: 2
`,
			wantErr: ErrUnknownGlobalLoop,
		},
		{
			name: "key bone out of range",
			yaml: `
key_bones: {root: 4}
bones: [{}]
`,
			wantErr: ErrInvalidKeyBone,
		},
		{
			name:    "unknown key bone name",
			yaml:    `key_bones: {tail: 0}`,
			wantErr: ErrUnknownKeyBoneName,
		},
		{
			name:    "unknown flag",
			yaml:    `sequences: [{animation: 1, flags: [sparkle]}]`,
			wantErr: ErrUnknownSequenceFlag,
		},
		{
			name:    "next variation out of range",
			yaml:    `sequences: [{animation: 1, next_variation: 3}]`,
			wantErr: ErrInvalidNextVariation,
		},
		{
			name: "static model is valid",
			yaml: `bones: [{}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModel([]byte(tt.yaml))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMarshalModelRoundTrip(t *testing.T) {
	m, err := ParseModel([]byte(walkerYAML))
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}

	data, err := MarshalModel(m)
	if err != nil {
		t.Fatalf("MarshalModel: %v", err)
	}
	back, err := ParseModel(data)
	if err != nil {
		t.Fatalf("re-parse: %v\n%s", err, data)
	}

	if back.Sequences[0].Flags != m.Sequences[0].Flags {
		t.Errorf("flags changed: %b -> %b", m.Sequences[0].Flags, back.Sequences[0].Flags)
	}
	if back.KeyBones[KeyBoneHead] != 1 {
		t.Errorf("key bones changed: %v", back.KeyBones)
	}
	if back.Bones[0].Parent != -1 {
		t.Errorf("root parent changed: %d", back.Bones[0].Parent)
	}
}

func TestParseModelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walker.yaml")
	if err := os.WriteFile(path, []byte(walkerYAML), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := ParseModelFile(path)
	if err != nil {
		t.Fatalf("ParseModelFile: %v", err)
	}
	if m.Name != "walker" {
		t.Errorf("expected walker, got %q", m.Name)
	}

	if _, err := ParseModelFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestKeyBoneNames(t *testing.T) {
	tests := []struct {
		in   string
		want KeyBone
	}{
		{"main", KeyBoneMain},
		{"root", KeyBoneRoot},
		{"default", KeyBoneDefault},
		{"7", KeyBoneJaw},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKeyBone(tt.in)
			if err != nil {
				t.Fatalf("ParseKeyBone(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseKeyBone(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBundledModelsParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "models", "*.yaml"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(paths) == 0 {
		t.Skip("no bundled models")
	}

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			m, err := ParseModelFile(path)
			if err != nil {
				t.Fatalf("ParseModelFile: %v", err)
			}
			if !m.HasAnimation() {
				t.Error("bundled model has nothing to animate")
			}
		})
	}
}
