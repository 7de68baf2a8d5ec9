package animation

import (
	gomath "math"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// sampleChannel evaluates a channel for the bone state drv. Global loop
// channels read the instance's loop timer and never blend. mix interpolates
// between keyframes, blend mixes the current and pending sequence results.
func sampleChannel[T any](c *Channel[T], drv *boneInstance, loops []float32, mix, blend func(a, b T, t float32) T, def T) T {
	if c.GlobalLoop >= 0 {
		if int(c.GlobalLoop) >= len(loops) {
			return def
		}
		return interpolate(c.loopKeys(), loops[c.GlobalLoop]*1000, mix, def)
	}
	if drv == nil || !drv.current.active() {
		return def
	}

	value := interpolate(c.keys(drv.current.Sequence), drv.current.Progress*1000, mix, def)
	if drv.next.active() && drv.transitionDuration > 0 {
		pending := interpolate(c.keys(drv.next.Sequence), drv.next.Progress*1000, mix, def)
		value = blend(value, pending, drv.blendWeight())
	}
	return value
}

// boneLocalMatrix composes translate(pivot)·T·R·S·translate(-pivot).
func boneLocalMatrix(inst *Instance, i int) math.Mat4 {
	bone := &inst.skeleton.Bones[i]
	bi := &inst.bones[i]

	if !bone.Transformed {
		if bi.rotationOffset.IsIdentity() {
			return math.Identity()
		}
		return math.TranslateVec(bone.Pivot).
			Mul(bi.rotationOffset.ToMat4()).
			Mul(math.TranslateVec(bone.Pivot.Negate()))
	}

	drv := inst.driver(i)
	t := sampleChannel(&bone.Translation, drv, inst.globalLoops, math.LerpVec3, math.LerpVec3, math.Vec3Zero)
	r := sampleChannel(&bone.Rotation, drv, inst.globalLoops, math.SlerpQuat, math.SlerpQuat, math.QuatIdentity())
	s := sampleChannel(&bone.Scale, drv, inst.globalLoops, math.LerpVec3, math.LerpVec3, math.Vec3One)
	r = bi.rotationOffset.Mul(r.Normalize()).Normalize()

	local := math.Compose(t, r, s)
	if bone.Pivot == math.Vec3Zero {
		return local
	}
	return math.TranslateVec(bone.Pivot).Mul(local).Mul(math.TranslateVec(bone.Pivot.Negate()))
}

// textureTransformMatrix evaluates T·R·S of a texture transform, driven by
// bone 0's playback state. Rotation blending is linear here, unlike bones.
func textureTransformMatrix(inst *Instance, i int) math.Mat4 {
	tt := &inst.skeleton.TextureTransforms[i]
	drv := inst.driver(0)

	t := sampleChannel(&tt.Translation, drv, inst.globalLoops, math.LerpVec3, math.LerpVec3, math.Vec3Zero)
	r := sampleChannel(&tt.Rotation, drv, inst.globalLoops, math.SlerpQuat, math.LerpQuat, math.QuatIdentity())
	s := sampleChannel(&tt.Scale, drv, inst.globalLoops, math.LerpVec3, math.LerpVec3, math.Vec3One)
	return math.Compose(t, r.Normalize(), s)
}

// sameBits reports whether two matrices are bit-for-bit identical.
func sameBits(a, b *math.Mat4) bool {
	for i := range a {
		if gomath.Float32bits(a[i]) != gomath.Float32bits(b[i]) {
			return false
		}
	}
	return true
}
