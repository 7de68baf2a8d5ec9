package animation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

type flushCall struct {
	id       InstanceID
	start    uint32
	matrices []math.Mat4
}

// recordingSink keeps every call it receives.
type recordingSink struct {
	mu                sync.Mutex
	added             []InstanceID
	bones             []flushCall
	textureTransforms []flushCall
}

func (r *recordingSink) AddAnimationInstance(id InstanceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, id)
}

func (r *recordingSink) SetBoneMatricesAsDirty(id InstanceID, start uint32, matrices []math.Mat4) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bones = append(r.bones, flushCall{id: id, start: start, matrices: append([]math.Mat4(nil), matrices...)})
}

func (r *recordingSink) SetTextureTransformMatricesAsDirty(id InstanceID, start uint32, matrices []math.Mat4) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textureTransforms = append(r.textureTransforms, flushCall{id: id, start: start, matrices: append([]math.Mat4(nil), matrices...)})
}

func (r *recordingSink) flushedBones() []InstanceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]InstanceID, len(r.bones))
	for i, c := range r.bones {
		ids[i] = c.id
	}
	return ids
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bones = nil
	r.textureTransforms = nil
}

func newTestSystem(t *testing.T, sink PoseSink) *System {
	t.Helper()
	return New(DefaultConfig(),
		WithLogger(zaptest.NewLogger(t)),
		WithScheduler(NewGroupScheduler(4).WithBatchSize(2)),
		WithPoseSink(sink))
}

func vk(t uint32, x, y, z float32) formats.Keyframe[[3]float32] {
	return formats.Keyframe[[3]float32]{Time: t, Value: [3]float32{x, y, z}}
}

func translationTrack(seq uint16, keys ...formats.Keyframe[[3]float32]) formats.Vec3Group {
	return formats.Vec3Group{Tracks: []formats.Track[[3]float32]{{Sequence: seq, Keys: keys}}}
}

// twoBoneModel is a root and a child; sequence 0 is animation 5, one second,
// not looping, moving the root from (0,0,0) to (1,0,0).
func twoBoneModel() *formats.AnimatedModel {
	return &formats.AnimatedModel{
		Name: "two-bone",
		Bones: []formats.ModelBone{
			{
				Parent:      -1,
				Transformed: true,
				Translation: translationTrack(0, vk(0, 0, 0, 0), vk(1000, 1, 0, 0)),
			},
			{Parent: 0},
		},
		Sequences: []formats.ModelSequence{
			{AnimationID: 5, DurationMs: 1000, NextVariation: -1},
		},
	}
}

func addInstance(t *testing.T, sys *System, model ModelID, asset *formats.AnimatedModel, id InstanceID) {
	t.Helper()
	if !sys.HasSkeleton(model) {
		require.True(t, sys.AddSkeleton(model, asset))
	}
	require.True(t, sys.AddInstance(model, id))
}

func boneMatrix(t *testing.T, sys *System, id InstanceID, bone int) math.Mat4 {
	t.Helper()
	matrices, ok := sys.BoneMatrices(id)
	require.True(t, ok)
	require.Less(t, bone, len(matrices))
	return matrices[bone]
}

func drain(sys *System) []FinishEvent {
	var events []FinishEvent
	sys.DrainEvents(func(ev FinishEvent) { events = append(events, ev) })
	return events
}
