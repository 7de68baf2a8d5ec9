package animation

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Track holds one channel's keyframes for one sequence.
type Track[T any] struct {
	Sequence SequenceID
	Keys     []Keyframe[T]
}

// Channel is an animated value: one track per sequence, or a single track
// driven by a global loop when GlobalLoop >= 0.
type Channel[T any] struct {
	GlobalLoop int32
	Tracks     []Track[T]
}

// keys returns the track for seq, or nil when the channel has none.
func (c *Channel[T]) keys(seq SequenceID) []Keyframe[T] {
	for i := range c.Tracks {
		if c.Tracks[i].Sequence == seq {
			return c.Tracks[i].Keys
		}
	}
	return nil
}

// loopKeys returns the track a global loop drives.
func (c *Channel[T]) loopKeys() []Keyframe[T] {
	if len(c.Tracks) == 0 {
		return nil
	}
	return c.Tracks[0].Keys
}

// Bone is the immutable definition of one skeleton bone.
type Bone struct {
	Parent      int16
	Pivot       math.Vec3
	Transformed bool
	Translation Channel[math.Vec3]
	Rotation    Channel[math.Quat]
	Scale       Channel[math.Vec3]
}

// Sequence is an animation clip. Durations are in seconds.
type Sequence struct {
	Animation     AnimationID
	SubID         uint16
	Duration      float32
	BlendIn       float32
	BlendOut      float32
	Flags         formats.SequenceFlags
	NextVariation SequenceID
}

// Loops reports whether the sequence wraps at its duration.
func (s *Sequence) Loops() bool {
	return s.Flags.Has(formats.SequenceLoop)
}

// TextureTransform animates a UV matrix.
type TextureTransform struct {
	Translation Channel[math.Vec3]
	Rotation    Channel[math.Quat]
	Scale       Channel[math.Vec3]
}

// Skeleton is the shared, read-only animation definition of a model.
type Skeleton struct {
	Model             ModelID
	Bones             []Bone
	Sequences         []Sequence
	TextureTransforms []TextureTransform
	GlobalLoops       []float32 // seconds

	animationToSequence map[AnimationID]SequenceID
	keyBones            map[KeyBone]int16
}

func newSkeleton(model ModelID, asset *formats.AnimatedModel, log *zap.Logger) *Skeleton {
	s := &Skeleton{
		Model:               model,
		Bones:               make([]Bone, len(asset.Bones)),
		Sequences:           make([]Sequence, len(asset.Sequences)),
		TextureTransforms:   make([]TextureTransform, len(asset.TextureTransforms)),
		GlobalLoops:         make([]float32, len(asset.GlobalLoops)),
		animationToSequence: make(map[AnimationID]SequenceID),
		keyBones:            make(map[KeyBone]int16, len(asset.KeyBones)),
	}

	for i, ms := range asset.GlobalLoops {
		s.GlobalLoops[i] = float32(ms) / 1000
	}

	for i, src := range asset.Sequences {
		next := InvalidSequenceID
		if src.NextVariation >= 0 && int(src.NextVariation) < len(asset.Sequences) {
			next = SequenceID(src.NextVariation)
		}
		s.Sequences[i] = Sequence{
			Animation:     AnimationID(src.AnimationID),
			SubID:         src.SubID,
			Duration:      float32(src.DurationMs) / 1000,
			BlendIn:       float32(src.BlendInMs) / 1000,
			BlendOut:      float32(src.BlendOutMs) / 1000,
			Flags:         src.Flags,
			NextVariation: next,
		}

		if src.Flags.Has(formats.SequenceAlias) || src.SubID != 0 {
			continue
		}
		anim := AnimationID(src.AnimationID)
		if first, exists := s.animationToSequence[anim]; exists {
			log.Warn("duplicate sequence for animation",
				zap.Uint32("model", uint32(model)),
				zap.Uint32("animation", uint32(anim)),
				zap.Uint32("kept", uint32(first)),
				zap.Int("ignored", i))
			continue
		}
		s.animationToSequence[anim] = SequenceID(i)
	}

	for i := range asset.Bones {
		src := &asset.Bones[i]
		parent := src.Parent
		if parent >= int16(i) {
			log.Warn("bone parent out of order, treating as root",
				zap.Uint32("model", uint32(model)),
				zap.Int("bone", i),
				zap.Int16("parent", parent))
			parent = -1
		}
		s.Bones[i] = Bone{
			Parent:      parent,
			Pivot:       math.Vec3FromArray(src.Pivot),
			Transformed: src.Transformed,
			Translation: convertChannel(src.Translation, math.Vec3FromArray),
			Rotation:    convertChannel(src.Rotation, math.QuatFromArray),
			Scale:       convertChannel(src.Scale, math.Vec3FromArray),
		}
	}

	for i := range asset.TextureTransforms {
		src := &asset.TextureTransforms[i]
		s.TextureTransforms[i] = TextureTransform{
			Translation: convertChannel(src.Translation, math.Vec3FromArray),
			Rotation:    convertChannel(src.Rotation, math.QuatFromArray),
			Scale:       convertChannel(src.Scale, math.Vec3FromArray),
		}
	}

	for kb, bone := range asset.KeyBones {
		if bone < 0 || int(bone) >= len(s.Bones) {
			log.Warn("key bone out of range",
				zap.Uint32("model", uint32(model)),
				zap.Stringer("key_bone", kb),
				zap.Int16("bone", bone))
			continue
		}
		s.keyBones[kb] = bone
	}

	return s
}

func convertChannel[A, T any](g formats.TrackGroup[A], conv func(A) T) Channel[T] {
	c := Channel[T]{GlobalLoop: -1}
	if g.GlobalLoop != nil {
		c.GlobalLoop = int32(*g.GlobalLoop)
	}
	if len(g.Tracks) == 0 {
		return c
	}
	c.Tracks = make([]Track[T], len(g.Tracks))
	for i, tr := range g.Tracks {
		keys := make([]Keyframe[T], len(tr.Keys))
		for k, kf := range tr.Keys {
			keys[k] = Keyframe[T]{Time: float32(kf.Time), Value: conv(kf.Value)}
		}
		c.Tracks[i] = Track[T]{Sequence: SequenceID(tr.Sequence), Keys: keys}
	}
	return c
}

// SequenceFor returns the canonical sequence of an animation type.
func (s *Skeleton) SequenceFor(anim AnimationID) SequenceID {
	if id, ok := s.animationToSequence[anim]; ok {
		return id
	}
	return InvalidSequenceID
}

// ResolveKeyBone maps a key bone to a bone index. KeyBoneDefault resolves to
// Main, then Root; Root falls back to bone 0 when the model does not name it.
func (s *Skeleton) ResolveKeyBone(kb KeyBone) int16 {
	if kb == KeyBoneDefault {
		if idx, ok := s.keyBones[KeyBoneMain]; ok {
			return idx
		}
		kb = KeyBoneRoot
	}
	if idx, ok := s.keyBones[kb]; ok {
		return idx
	}
	if kb == KeyBoneRoot && len(s.Bones) > 0 {
		return 0
	}
	return InvalidBone
}
