// Package formats provides the parsed animated-model structure consumed by the
// animation engine and a YAML decoder for model definition files.
package formats

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Model definition errors.
var (
	ErrInvalidBoneOrder     = errors.New("bone parent must precede the bone")
	ErrUnsortedKeyframes    = errors.New("keyframe timestamps are not ascending")
	ErrUnknownSequence      = errors.New("track references unknown sequence")
	ErrUnknownGlobalLoop    = errors.New("track references unknown global loop")
	ErrInvalidKeyBone       = errors.New("key bone references unknown bone")
	ErrUnknownKeyBoneName   = errors.New("unknown key bone name")
	ErrUnknownSequenceFlag  = errors.New("unknown sequence flag")
	ErrInvalidNextVariation = errors.New("next variation references unknown sequence")
)

// KeyBone is a semantic bone identifier resolved per model to a bone index.
type KeyBone int16

// Key bone identifiers. The numbering follows the on-disk key bone table.
const (
	KeyBoneDefault KeyBone = -1 // Resolves to Main, then Root.

	KeyBoneArmL      KeyBone = 0
	KeyBoneArmR      KeyBone = 1
	KeyBoneShoulderL KeyBone = 2
	KeyBoneShoulderR KeyBone = 3
	KeyBoneSpineLow  KeyBone = 4
	KeyBoneWaist     KeyBone = 5
	KeyBoneHead      KeyBone = 6
	KeyBoneJaw       KeyBone = 7
	KeyBoneHandR     KeyBone = 8
	KeyBoneHandL     KeyBone = 9
	KeyBoneBreath    KeyBone = 10
	KeyBoneName      KeyBone = 11
	KeyBoneFootL     KeyBone = 12
	KeyBoneFootR     KeyBone = 13
	KeyBoneMain      KeyBone = 26
	KeyBoneRoot      KeyBone = 27
)

var keyBoneNames = map[KeyBone]string{
	KeyBoneDefault:   "default",
	KeyBoneArmL:      "arm_l",
	KeyBoneArmR:      "arm_r",
	KeyBoneShoulderL: "shoulder_l",
	KeyBoneShoulderR: "shoulder_r",
	KeyBoneSpineLow:  "spine_low",
	KeyBoneWaist:     "waist",
	KeyBoneHead:      "head",
	KeyBoneJaw:       "jaw",
	KeyBoneHandR:     "hand_r",
	KeyBoneHandL:     "hand_l",
	KeyBoneBreath:    "breath",
	KeyBoneName:      "name",
	KeyBoneFootL:     "foot_l",
	KeyBoneFootR:     "foot_r",
	KeyBoneMain:      "main",
	KeyBoneRoot:      "root",
}

// String returns the key bone's definition-file name.
func (k KeyBone) String() string {
	if name, ok := keyBoneNames[k]; ok {
		return name
	}
	return "keybone(" + strconv.Itoa(int(k)) + ")"
}

// ParseKeyBone resolves a key bone name or decimal id.
func ParseKeyBone(s string) (KeyBone, error) {
	for k, name := range keyBoneNames {
		if name == s {
			return k, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 16); err == nil {
		return KeyBone(n), nil
	}
	return KeyBoneDefault, fmt.Errorf("%w: %q", ErrUnknownKeyBoneName, s)
}

// UnmarshalYAML accepts either a key bone name or its numeric id.
func (k *KeyBone) UnmarshalYAML(value *yaml.Node) error {
	kb, err := ParseKeyBone(value.Value)
	if err != nil {
		return err
	}
	*k = kb
	return nil
}

// MarshalYAML writes known key bones by name.
func (k KeyBone) MarshalYAML() (interface{}, error) {
	if name, ok := keyBoneNames[k]; ok {
		return name, nil
	}
	return int(k), nil
}

// SequenceFlags describe how a sequence plays and blends.
type SequenceFlags uint32

const (
	// SequenceAlias marks a sequence that only redirects to another one.
	SequenceAlias SequenceFlags = 1 << iota
	// SequenceBlend requests blending into this sequence.
	SequenceBlend
	// SequenceBlendTransition requests blending out of this sequence.
	SequenceBlendTransition
	// SequenceBlendTransitionIfActive blends out only while still animating.
	SequenceBlendTransitionIfActive
	// SequenceLoop makes the sequence wrap at its duration.
	SequenceLoop
)

var sequenceFlagNames = []struct {
	flag SequenceFlags
	name string
}{
	{SequenceAlias, "alias"},
	{SequenceBlend, "blend"},
	{SequenceBlendTransition, "blend_transition"},
	{SequenceBlendTransitionIfActive, "blend_transition_if_active"},
	{SequenceLoop, "loop"},
}

// Has reports whether all bits of f are set.
func (s SequenceFlags) Has(f SequenceFlags) bool {
	return s&f == f
}

// UnmarshalYAML decodes a list of flag names.
func (s *SequenceFlags) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return err
	}
	var flags SequenceFlags
	for _, name := range names {
		found := false
		for _, f := range sequenceFlagNames {
			if f.name == name {
				flags |= f.flag
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrUnknownSequenceFlag, name)
		}
	}
	*s = flags
	return nil
}

// MarshalYAML encodes the flags as a list of names.
func (s SequenceFlags) MarshalYAML() (interface{}, error) {
	var names []string
	for _, f := range sequenceFlagNames {
		if s.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	return names, nil
}

// Keyframe is a single timestamped value. Time is in milliseconds.
type Keyframe[T any] struct {
	Time  uint32 `yaml:"t"`
	Value T      `yaml:"v"`
}

// Track holds the keyframes of one channel for one sequence.
// When the owning group is driven by a global loop, Sequence is ignored.
type Track[T any] struct {
	Sequence uint16        `yaml:"sequence"`
	Keys     []Keyframe[T] `yaml:"keys"`
}

// TrackGroup is an animated channel: per-sequence tracks, optionally driven by
// a model-wide global loop instead of sequence progress.
type TrackGroup[T any] struct {
	GlobalLoop *uint16   `yaml:"global_loop,omitempty"`
	Tracks     []Track[T] `yaml:"tracks,omitempty"`
}

// Empty reports whether the group carries no keyframes at all.
func (g *TrackGroup[T]) Empty() bool {
	for i := range g.Tracks {
		if len(g.Tracks[i].Keys) > 0 {
			return false
		}
	}
	return true
}

// Vec3Group animates translation or scale.
type Vec3Group = TrackGroup[[3]float32]

// QuatGroup animates rotation, stored as (x, y, z, w).
type QuatGroup = TrackGroup[[4]float32]

// ModelBone is one bone of a model's hierarchy.
type ModelBone struct {
	Parent      int16      `yaml:"parent"` // -1 for roots
	Pivot       [3]float32 `yaml:"pivot"`
	Transformed bool       `yaml:"transformed"`
	Translation Vec3Group  `yaml:"translation"`
	Rotation    QuatGroup  `yaml:"rotation"`
	Scale       Vec3Group  `yaml:"scale"`
}

// UnmarshalYAML applies the defaults for omitted fields: roots have no parent
// and bones are transformed unless stated otherwise.
func (b *ModelBone) UnmarshalYAML(value *yaml.Node) error {
	type plain ModelBone
	p := plain{Parent: -1, Transformed: true}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*b = ModelBone(p)
	return nil
}

// ModelSequence is one animation clip.
type ModelSequence struct {
	AnimationID   uint16        `yaml:"animation"`
	SubID         uint16        `yaml:"sub_id"`
	DurationMs    uint32        `yaml:"duration"`
	BlendInMs     uint16        `yaml:"blend_in"`
	BlendOutMs    uint16        `yaml:"blend_out"`
	Flags         SequenceFlags `yaml:"flags"`
	NextVariation int16         `yaml:"next_variation"` // -1 when none
}

// UnmarshalYAML defaults NextVariation to "none".
func (s *ModelSequence) UnmarshalYAML(value *yaml.Node) error {
	type plain ModelSequence
	p := plain{NextVariation: -1}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = ModelSequence(p)
	return nil
}

// ModelTextureTransform animates a UV transform.
type ModelTextureTransform struct {
	Translation Vec3Group `yaml:"translation"`
	Rotation    QuatGroup `yaml:"rotation"`
	Scale       Vec3Group `yaml:"scale"`
}

// AnimatedModel is the animation-relevant part of a parsed model.
type AnimatedModel struct {
	Name              string                  `yaml:"name"`
	Bones             []ModelBone             `yaml:"bones"`
	Sequences         []ModelSequence         `yaml:"sequences"`
	TextureTransforms []ModelTextureTransform `yaml:"texture_transforms"`
	GlobalLoops       []uint32                `yaml:"global_loops"` // durations in ms
	KeyBones          map[KeyBone]int16       `yaml:"key_bones"`
}

// HasAnimation reports whether the model has anything the engine can animate.
func (m *AnimatedModel) HasAnimation() bool {
	return len(m.Bones) > 0 && len(m.Sequences) > 0
}

// Validate checks the structural invariants the animation engine relies on.
func (m *AnimatedModel) Validate() error {
	for i := range m.Bones {
		b := &m.Bones[i]
		if b.Parent >= int16(i) {
			return fmt.Errorf("bone %d: parent %d: %w", i, b.Parent, ErrInvalidBoneOrder)
		}
		if err := m.validateChannels(b.Translation, b.Rotation, b.Scale); err != nil {
			return fmt.Errorf("bone %d: %w", i, err)
		}
	}
	for i := range m.TextureTransforms {
		tt := &m.TextureTransforms[i]
		if err := m.validateChannels(tt.Translation, tt.Rotation, tt.Scale); err != nil {
			return fmt.Errorf("texture transform %d: %w", i, err)
		}
	}
	for i, s := range m.Sequences {
		if s.NextVariation >= int16(len(m.Sequences)) {
			return fmt.Errorf("sequence %d: %w", i, ErrInvalidNextVariation)
		}
	}
	for kb, bone := range m.KeyBones {
		if bone < 0 || int(bone) >= len(m.Bones) {
			return fmt.Errorf("key bone %s -> %d: %w", kb, bone, ErrInvalidKeyBone)
		}
	}
	return nil
}

func (m *AnimatedModel) validateChannels(t Vec3Group, r QuatGroup, s Vec3Group) error {
	if err := validateGroup(m, "translation", t); err != nil {
		return err
	}
	if err := validateGroup(m, "rotation", r); err != nil {
		return err
	}
	return validateGroup(m, "scale", s)
}

func validateGroup[T any](m *AnimatedModel, channel string, g TrackGroup[T]) error {
	if g.GlobalLoop != nil && int(*g.GlobalLoop) >= len(m.GlobalLoops) {
		return fmt.Errorf("%s: global loop %d: %w", channel, *g.GlobalLoop, ErrUnknownGlobalLoop)
	}
	for _, tr := range g.Tracks {
		if g.GlobalLoop == nil && int(tr.Sequence) >= len(m.Sequences) {
			return fmt.Errorf("%s: sequence %d: %w", channel, tr.Sequence, ErrUnknownSequence)
		}
		sorted := sort.SliceIsSorted(tr.Keys, func(a, b int) bool {
			return tr.Keys[a].Time < tr.Keys[b].Time
		})
		if !sorted {
			return fmt.Errorf("%s: sequence %d: %w", channel, tr.Sequence, ErrUnsortedKeyframes)
		}
	}
	return nil
}
