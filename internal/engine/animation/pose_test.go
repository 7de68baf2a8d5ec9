package animation

import (
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

var axisZ = math.Vec3{Z: 1}

func qk(t uint32, q math.Quat) formats.Keyframe[[4]float32] {
	return formats.Keyframe[[4]float32]{Time: t, Value: [4]float32{q.X, q.Y, q.Z, q.W}}
}

func rotationTrack(seq uint16, keys ...formats.Keyframe[[4]float32]) formats.Track[[4]float32] {
	return formats.Track[[4]float32]{Sequence: seq, Keys: keys}
}

func assertPoint(t *testing.T, want, got math.Vec3) {
	t.Helper()
	assert.True(t, want.ApproxEqual(got, 1e-5), "want %v, got %v", want, got)
}

func TestBlendMixesTranslation(t *testing.T) {
	target := seq(2, 1000, formats.SequenceLoop)
	target.BlendInMs = 1000
	asset := singleBoneModel(seq(1, 1000, 0), target)
	asset.Bones[0].Translation = formats.Vec3Group{Tracks: []formats.Track[[3]float32]{
		{Sequence: 0, Keys: []formats.Keyframe[[3]float32]{vk(0, 0, 0, 0)}},
		{Sequence: 1, Keys: []formats.Keyframe[[3]float32]{vk(0, 2, 0, 0)}},
	}}

	sys := newTestSystem(t, nil)
	addInstance(t, sys, 1, asset, 1)
	require.True(t, sys.SetBoneSequence(1, KeyBoneDefault, 1, 0, BlendNone, false))
	sys.Update(0.125)
	assert.Equal(t, float32(0), boneMatrix(t, sys, 1, 0)[12])

	require.True(t, sys.SetBoneSequence(1, KeyBoneDefault, 2, 0, BlendStart, false))
	sys.Update(0.5)
	assert.Equal(t, float32(1), boneMatrix(t, sys, 1, 0)[12])

	sys.Update(0.5)
	sys.Update(0.125)
	assert.True(t, sys.IsPlaying(1, KeyBoneDefault, 2))
	assert.Equal(t, float32(2), boneMatrix(t, sys, 1, 0)[12])
}

// Bones blend rotations spherically while texture transforms blend them
// linearly. Both results are pinned.
func TestRotationBlendBonesVersusTextureTransforms(t *testing.T) {
	q90 := math.QuatFromAxisAngle(axisZ, gomath.Pi/2)
	rotation := formats.QuatGroup{Tracks: []formats.Track[[4]float32]{
		rotationTrack(0, qk(0, math.QuatIdentity())),
		rotationTrack(1, qk(0, q90)),
	}}

	target := seq(2, 1000, 0)
	target.BlendInMs = 1000
	asset := singleBoneModel(seq(1, 1000, 0), target)
	asset.Bones[0].Rotation = rotation
	asset.TextureTransforms = []formats.ModelTextureTransform{{Rotation: rotation}}

	sys := newTestSystem(t, nil)
	addInstance(t, sys, 1, asset, 1)
	require.True(t, sys.SetBoneSequence(1, KeyBoneDefault, 1, 0, BlendNone, false))
	sys.Update(0.125)
	require.True(t, sys.SetBoneSequence(1, KeyBoneDefault, 2, 0, BlendStart, false))
	sys.Update(0.25)
	require.Equal(t, float32(0.25), rootState(sys, 1).blendWeight())

	slerped := math.SlerpQuat(math.QuatIdentity(), q90, 0.25)
	wantBone := math.Compose(math.Vec3Zero, math.QuatIdentity().Mul(slerped.Normalize()).Normalize(), math.Vec3One)
	lerped := math.LerpQuat(math.QuatIdentity(), q90, 0.25)
	wantTexture := math.Compose(math.Vec3Zero, lerped.Normalize(), math.Vec3One)

	gotBone := boneMatrix(t, sys, 1, 0)
	textures, ok := sys.TextureTransformMatrices(1)
	require.True(t, ok)
	require.Len(t, textures, 1)

	assert.True(t, wantBone.ApproxEqual(gotBone, 1e-6), "bone: want %v, got %v", wantBone, gotBone)
	assert.True(t, wantTexture.ApproxEqual(textures[0], 1e-6), "texture: want %v, got %v", wantTexture, textures[0])
	assert.False(t, gotBone.ApproxEqual(textures[0], 1e-3), "bone and texture rotation blending differ")
}

func TestChildInheritsParent(t *testing.T) {
	asset := singleBoneModel(seq(1, 1000, 0))
	asset.Bones[0].Translation = translationTrack(0, vk(0, 1, 0, 0))
	asset.Bones = append(asset.Bones, formats.ModelBone{
		Parent:      0,
		Transformed: true,
		Translation: translationTrack(0, vk(0, 0, 1, 0)),
	})

	sys := newTestSystem(t, nil)
	addInstance(t, sys, 1, asset, 1)
	require.True(t, sys.SetBoneSequence(1, KeyBoneDefault, 1, 0, BlendNone, false))
	sys.Update(0.125)

	// The child has no state of its own and plays its root's sequence.
	assert.False(t, sys.storage.instances[1].bones[1].animating())
	assertPoint(t, math.Vec3{X: 1}, boneMatrix(t, sys, 1, 0).Translation())
	assertPoint(t, math.Vec3{X: 1, Y: 1}, boneMatrix(t, sys, 1, 1).Translation())
}

func TestPivotRotation(t *testing.T) {
	asset := singleBoneModel(seq(1, 1000, 0))
	asset.Bones[0].Pivot = [3]float32{1, 0, 0}
	asset.Bones[0].Rotation = formats.QuatGroup{Tracks: []formats.Track[[4]float32]{
		rotationTrack(0, qk(0, math.QuatFromAxisAngle(axisZ, gomath.Pi))),
	}}

	sys := newTestSystem(t, nil)
	addInstance(t, sys, 1, asset, 1)
	require.True(t, sys.SetBoneSequence(1, KeyBoneDefault, 1, 0, BlendNone, false))
	sys.Update(0.125)

	m := boneMatrix(t, sys, 1, 0)
	assertPoint(t, math.Vec3{X: 2}, m.TransformPoint(math.Vec3Zero))
	// The pivot stays in place.
	assertPoint(t, math.Vec3{X: 1}, m.TransformPoint(math.Vec3{X: 1}))
}

func TestScaleChannel(t *testing.T) {
	asset := singleBoneModel(seq(1, 1000, 0))
	asset.Bones[0].Scale = translationTrack(0, vk(0, 1, 1, 1), vk(1000, 3, 3, 3))

	sys := newTestSystem(t, nil)
	addInstance(t, sys, 1, asset, 1)
	require.True(t, sys.SetBoneSequence(1, KeyBoneDefault, 1, 0, BlendNone, false))
	sys.Update(0.5)

	m := boneMatrix(t, sys, 1, 0)
	assert.Equal(t, float32(2), m[0])
	assert.Equal(t, float32(2), m[5])
	assert.Equal(t, float32(2), m[10])
}

func TestRotationOffsetOnUntransformedBone(t *testing.T) {
	asset := singleBoneModel(seq(1, 1000, 0))
	asset.Bones[0].Transformed = false
	q90 := math.QuatFromAxisAngle(axisZ, gomath.Pi/2)

	sys := newTestSystem(t, nil)
	addInstance(t, sys, 1, asset, 1)
	sys.Update(0.125)
	assert.Equal(t, math.Identity(), boneMatrix(t, sys, 1, 0))

	require.True(t, sys.SetBoneRotation(1, KeyBoneDefault, q90))
	sys.Update(0.125)
	assertPoint(t, math.Vec3{Y: 1}, boneMatrix(t, sys, 1, 0).TransformPoint(math.Vec3{X: 1}))
}

func TestRotationOffsetComposesWithAnimation(t *testing.T) {
	q90 := math.QuatFromAxisAngle(axisZ, gomath.Pi/2)
	asset := singleBoneModel(seq(1, 1000, 0))
	asset.Bones[0].Rotation = formats.QuatGroup{Tracks: []formats.Track[[4]float32]{
		rotationTrack(0, qk(0, q90)),
	}}

	sys := newTestSystem(t, nil)
	addInstance(t, sys, 1, asset, 1)
	require.True(t, sys.SetBoneSequence(1, KeyBoneDefault, 1, 0, BlendNone, false))
	require.True(t, sys.SetBoneRotation(1, KeyBoneDefault, q90))
	sys.Update(0.125)

	assertPoint(t, math.Vec3{X: -1}, boneMatrix(t, sys, 1, 0).TransformPoint(math.Vec3{X: 1}))
}

func TestGlobalLoopChannel(t *testing.T) {
	loop := uint16(0)
	asset := singleBoneModel(seq(1, 1000, 0))
	asset.GlobalLoops = []uint32{1000}
	asset.Bones[0].Translation = formats.Vec3Group{
		GlobalLoop: &loop,
		Tracks: []formats.Track[[3]float32]{
			{Keys: []formats.Keyframe[[3]float32]{vk(0, 0, 0, 0), vk(1000, 10, 0, 0)}},
		},
	}

	sys := newTestSystem(t, nil)
	addInstance(t, sys, 1, asset, 1)

	// No sequence is playing; the loop timer alone drives the channel.
	sys.Update(0.25)
	assert.Equal(t, float32(2.5), boneMatrix(t, sys, 1, 0)[12])

	sys.Update(1)
	assert.Equal(t, float32(2.5), boneMatrix(t, sys, 1, 0)[12])
	assert.Equal(t, float32(0.25), sys.storage.instances[1].globalLoops[0])
}

func TestTextureTransformFollowsRootBone(t *testing.T) {
	asset := twoBoneModel()
	asset.TextureTransforms = []formats.ModelTextureTransform{{
		Translation: translationTrack(0, vk(0, 0, 0, 0), vk(1000, 0, 4, 0)),
	}}

	sink := &recordingSink{}
	sys := newTestSystem(t, sink)
	addInstance(t, sys, 1, asset, 1)
	addInstance(t, sys, 1, asset, 2)
	require.True(t, sys.SetBoneSequence(2, KeyBoneDefault, 5, 0, BlendNone, false))
	sys.Update(0.5)

	textures, ok := sys.TextureTransformMatrices(2)
	require.True(t, ok)
	assert.Equal(t, float32(2), textures[0][13])

	require.Len(t, sink.textureTransforms, 1)
	assert.Equal(t, InstanceID(2), sink.textureTransforms[0].id)
	assert.Equal(t, uint32(1), sink.textureTransforms[0].start, "second instance's slot")
}
