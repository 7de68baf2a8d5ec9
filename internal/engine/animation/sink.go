package animation

import "github.com/Faultbox/midgard-anim/pkg/math"

// PoseSink receives evaluated poses, normally the renderer. Matrix slices
// alias the system's buffers and are only valid for the duration of the call.
type PoseSink interface {
	// AddAnimationInstance announces a new instance.
	AddAnimationInstance(id InstanceID)
	// SetBoneMatricesAsDirty hands over changed bone matrices; start is the
	// index of matrices[0] in the flat bone buffer.
	SetBoneMatricesAsDirty(id InstanceID, start uint32, matrices []math.Mat4)
	// SetTextureTransformMatricesAsDirty is the texture transform counterpart.
	SetTextureTransformMatricesAsDirty(id InstanceID, start uint32, matrices []math.Mat4)
}

type nopSink struct{}

func (nopSink) AddAnimationInstance(InstanceID) {}

func (nopSink) SetBoneMatricesAsDirty(InstanceID, uint32, []math.Mat4) {}

func (nopSink) SetTextureTransformMatricesAsDirty(InstanceID, uint32, []math.Mat4) {}
