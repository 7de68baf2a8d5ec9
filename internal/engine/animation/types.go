// Package animation evaluates per-frame bone and texture-transform matrices
// for every animated model instance.
//
// A Skeleton is built once per model and shared read-only by all instances of
// that model. An Instance holds one playback state machine per bone and owns a
// slice of two flat matrix buffers. System.Update advances every instance in
// parallel, then hands a bounded number of changed instances to a PoseSink.
//
// All mutators (AddSkeleton, AddInstance, RemoveInstance, SetBoneSequence,
// SetBoneRotation, Reserve, FitToBuffersAfterLoad, Clear) must be called from
// the thread that calls Update, between frames. They refuse to run while the
// parallel phase of Update is active.
package animation

import (
	gomath "math"

	"github.com/Faultbox/midgard-anim/pkg/formats"
)

// ModelID identifies a model and therefore a Skeleton.
type ModelID uint32

// InstanceID identifies a spawned, animated object.
type InstanceID uint32

// AnimationID is a numeric animation type (stand, walk, attack...).
type AnimationID uint32

// SequenceID indexes a skeleton's sequences.
type SequenceID uint32

// Sentinels marking "no value".
const (
	InvalidModelID     ModelID     = gomath.MaxUint32
	InvalidInstanceID  InstanceID  = gomath.MaxUint32
	InvalidAnimationID AnimationID = gomath.MaxUint32
	InvalidSequenceID  SequenceID  = gomath.MaxUint32

	// InvalidBone is returned when a key bone does not resolve.
	InvalidBone int16 = -1

	invalidOffset uint32 = gomath.MaxUint32
)

// KeyBone is a semantic bone identifier, see formats.KeyBone.
type KeyBone = formats.KeyBone

// Key bones the engine resolves specially.
const (
	KeyBoneDefault = formats.KeyBoneDefault
	KeyBoneMain    = formats.KeyBoneMain
	KeyBoneRoot    = formats.KeyBoneRoot
)

// DefaultBlendDuration replaces a zero authored blend time when blending is requested.
const DefaultBlendDuration float32 = 0.150

// Flag modifies how a requested sequence plays.
type Flag uint8

const (
	// FlagPlayOnce plays a looping sequence a single time.
	FlagPlayOnce Flag = 1 << iota
	// FlagFreeze holds the last frame instead of clearing when the sequence ends.
	FlagFreeze
	// FlagFrozen is set by the engine once a frozen sequence is holding.
	FlagFrozen
)

// BlendOverride chooses whether a SetBoneSequence request blends.
type BlendOverride uint8

const (
	// BlendAuto decides from the target and current sequences' flags.
	BlendAuto BlendOverride = iota
	// BlendNone swaps without blending.
	BlendNone
	// BlendStart blends into the new sequence.
	BlendStart
	// BlendEnd blends out of the new sequence when it is later replaced or loops.
	BlendEnd
	// BlendBoth is BlendStart and BlendEnd.
	BlendBoth
)

func (b BlendOverride) String() string {
	switch b {
	case BlendAuto:
		return "auto"
	case BlendNone:
		return "none"
	case BlendStart:
		return "start"
	case BlendEnd:
		return "end"
	case BlendBoth:
		return "both"
	default:
		return "unknown"
	}
}

// FinishReason tells why a FinishEvent was emitted.
type FinishReason uint8

const (
	// FinishCompleted: a non-looping sequence reached its end.
	FinishCompleted FinishReason = iota
	// FinishReplaced: the sequence was swapped out for the pending one.
	FinishReplaced
	// FinishPreempted: a pending request was overwritten before it started.
	FinishPreempted
)

func (r FinishReason) String() string {
	switch r {
	case FinishCompleted:
		return "completed"
	case FinishReplaced:
		return "replaced"
	case FinishPreempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// FinishEvent is queued for requests made with notify set and drained by the
// caller with System.DrainEvents.
type FinishEvent struct {
	Instance InstanceID
	Bone     int16
	From     AnimationID
	To       AnimationID
	Reason   FinishReason
}
