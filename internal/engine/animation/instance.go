package animation

import "github.com/Faultbox/midgard-anim/pkg/math"

// sequenceState is one playback slot of a bone. Progress and blend times are
// in seconds.
type sequenceState struct {
	Animation  AnimationID
	Sequence   SequenceID
	Progress   float32
	Flags      Flag
	BlendStart float32
	BlendEnd   float32
	Notify     bool
}

func idleState() sequenceState {
	return sequenceState{Animation: InvalidAnimationID, Sequence: InvalidSequenceID}
}

func (s *sequenceState) active() bool {
	return s.Sequence != InvalidSequenceID
}

// boneInstance is the per-instance playback state of one bone.
type boneInstance struct {
	current sequenceState
	next    sequenceState

	timeToTransition   float32
	transitionDuration float32

	rotationOffset math.Quat

	// parent indexes the owning instance's bones, -1 for roots.
	parent int16
}

func (b *boneInstance) animating() bool {
	return b.current.active() || b.next.active()
}

// blendWeight is the share of the pending sequence in the current pose.
func (b *boneInstance) blendWeight() float32 {
	if b.transitionDuration <= 0 {
		return 1
	}
	w := 1 - b.timeToTransition/b.transitionDuration
	switch {
	case w < 0:
		return 0
	case w > 1:
		return 1
	}
	return w
}

// dirtyRange is a half-open index range of changed matrices.
type dirtyRange struct {
	start, end int
}

func (r *dirtyRange) empty() bool {
	return r.start >= r.end
}

func (r *dirtyRange) include(i int) {
	if r.empty() {
		r.start, r.end = i, i+1
		return
	}
	r.start = min(r.start, i)
	r.end = max(r.end, i+1)
}

func (r *dirtyRange) reset() {
	*r = dirtyRange{}
}

// Instance is the mutable animation state of one spawned object.
type Instance struct {
	model    ModelID
	id       InstanceID
	skeleton *Skeleton

	bones       []boneInstance
	globalLoops []float32 // seconds into each global loop

	boneMatrixOffset             uint32
	textureTransformMatrixOffset uint32

	// Changed ranges not yet handed to the pose sink.
	dirtyBones             dirtyRange
	dirtyTextureTransforms dirtyRange
}

func newInstance(sk *Skeleton, id InstanceID) *Instance {
	inst := &Instance{
		model:                        sk.Model,
		id:                           id,
		skeleton:                     sk,
		bones:                        make([]boneInstance, len(sk.Bones)),
		globalLoops:                  make([]float32, len(sk.GlobalLoops)),
		boneMatrixOffset:             invalidOffset,
		textureTransformMatrixOffset: invalidOffset,
	}
	for i := range inst.bones {
		inst.bones[i] = boneInstance{
			current:        idleState(),
			next:           idleState(),
			rotationOffset: math.QuatIdentity(),
			parent:         sk.Bones[i].Parent,
		}
	}
	return inst
}

// driver returns the bone whose playback state animates bone i: the bone
// itself, or its nearest animating ancestor. Nil means bind pose.
func (inst *Instance) driver(i int) *boneInstance {
	for i >= 0 {
		b := &inst.bones[i]
		if b.animating() {
			return b
		}
		i = int(b.parent)
	}
	return nil
}

// advanceGlobalLoops moves every global loop timer forward, wrapping at its duration.
func (inst *Instance) advanceGlobalLoops(dt float32) {
	for i, duration := range inst.skeleton.GlobalLoops {
		if duration <= 0 {
			inst.globalLoops[i] = 0
			continue
		}
		inst.globalLoops[i] = wrap(inst.globalLoops[i]+dt, duration)
	}
}
