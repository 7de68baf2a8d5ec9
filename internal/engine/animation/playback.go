package animation

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// lookupBone resolves an instance and key bone for a public call.
func (s *System) lookupBone(id InstanceID, bone KeyBone) (*Instance, int16, bool) {
	inst, ok := s.storage.instances[id]
	if !ok || len(inst.bones) == 0 {
		return nil, InvalidBone, false
	}
	idx := inst.skeleton.ResolveKeyBone(bone)
	if idx == InvalidBone {
		return nil, InvalidBone, false
	}
	return inst, idx, true
}

// SetBoneSequence requests animation anim on a bone of instance id. The
// request replaces any pending one; with notify set, a FinishEvent is queued
// when the request completes, is replaced or is preempted.
func (s *System) SetBoneSequence(id InstanceID, bone KeyBone, anim AnimationID, flags Flag, blend BlendOverride, notify bool) bool {
	if !s.mutable("SetBoneSequence") {
		return false
	}
	inst, boneIdx, ok := s.lookupBone(id, bone)
	if !ok {
		return false
	}
	sk := inst.skeleton
	seqID := sk.SequenceFor(anim)
	if seqID == InvalidSequenceID {
		return false
	}
	seq := &sk.Sequences[seqID]
	b := &inst.bones[boneIdx]

	if b.next.active() && b.next.Notify {
		s.storage.pushEvent(FinishEvent{
			Instance: id,
			Bone:     boneIdx,
			From:     b.next.Animation,
			To:       anim,
			Reason:   FinishPreempted,
		})
	}

	blendStart := float32(0)
	if s.shouldBlendIn(sk, b, seq, blend) {
		blendStart = seq.BlendIn
		if blendStart <= 0 {
			blendStart = DefaultBlendDuration
		}
	}
	blendEnd := float32(0)
	if blend == BlendEnd || blend == BlendBoth || (blend == BlendAuto && seq.Flags.Has(formats.SequenceBlendTransition)) {
		blendEnd = seq.BlendOut
		if blendEnd <= 0 {
			blendEnd = DefaultBlendDuration
		}
	}

	b.next = sequenceState{
		Animation:  anim,
		Sequence:   seqID,
		Flags:      flags &^ FlagFrozen,
		BlendStart: blendStart,
		BlendEnd:   blendEnd,
		Notify:     notify,
	}
	b.timeToTransition = blendStart
	b.transitionDuration = blendStart

	s.log.Debug("bone sequence set",
		zap.Uint32("instance", uint32(id)),
		zap.Int16("bone", boneIdx),
		zap.Uint32("animation", uint32(anim)),
		zap.Uint32("sequence", uint32(seqID)),
		zap.Stringer("blend", blend),
		zap.Float32("blend_time", blendStart))
	return true
}

func (s *System) shouldBlendIn(sk *Skeleton, b *boneInstance, target *Sequence, blend BlendOverride) bool {
	switch blend {
	case BlendStart, BlendBoth:
		return true
	case BlendNone, BlendEnd:
		return false
	}

	if target.Flags.Has(formats.SequenceBlend) {
		return true
	}
	if !b.current.active() {
		return false
	}
	if b.current.BlendEnd > 0 {
		return true
	}
	cur := &sk.Sequences[b.current.Sequence]
	if cur.Flags.Has(formats.SequenceBlendTransition) {
		return true
	}
	return cur.Flags.Has(formats.SequenceBlendTransitionIfActive) && b.current.Flags&FlagFrozen == 0
}

// SetBoneRotation sets a gameplay rotation applied on top of the bone's animation.
func (s *System) SetBoneRotation(id InstanceID, bone KeyBone, rotation math.Quat) bool {
	if !s.mutable("SetBoneRotation") {
		return false
	}
	inst, boneIdx, ok := s.lookupBone(id, bone)
	if !ok {
		return false
	}
	inst.bones[boneIdx].rotationOffset = rotation.Normalize()
	return true
}

// CurrentAnimation returns the playing and pending animation of a bone.
// Either may be InvalidAnimationID.
func (s *System) CurrentAnimation(id InstanceID, bone KeyBone) (primary, pending AnimationID, ok bool) {
	if !s.enabled {
		return InvalidAnimationID, InvalidAnimationID, false
	}
	inst, boneIdx, ok := s.lookupBone(id, bone)
	if !ok {
		return InvalidAnimationID, InvalidAnimationID, false
	}
	b := &inst.bones[boneIdx]
	return b.current.Animation, b.next.Animation, true
}

// IsPlaying reports whether anim is the playing animation of a bone.
func (s *System) IsPlaying(id InstanceID, bone KeyBone, anim AnimationID) bool {
	primary, _, ok := s.CurrentAnimation(id, bone)
	return ok && primary == anim && anim != InvalidAnimationID
}

// SequenceIDForAnimationID returns the canonical sequence of anim on model.
func (s *System) SequenceIDForAnimationID(model ModelID, anim AnimationID) SequenceID {
	sk := s.Skeleton(model)
	if sk == nil {
		return InvalidSequenceID
	}
	return sk.SequenceFor(anim)
}

// BoneIndexFromKeyBone resolves a key bone on model.
func (s *System) BoneIndexFromKeyBone(model ModelID, bone KeyBone) int16 {
	sk := s.Skeleton(model)
	if sk == nil {
		return InvalidBone
	}
	return sk.ResolveKeyBone(bone)
}
