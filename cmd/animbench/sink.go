package main

import (
	"sync/atomic"

	"github.com/Faultbox/midgard-anim/internal/engine/animation"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// countingSink stands in for a renderer and counts what it is handed.
type countingSink struct {
	instances       atomic.Int64
	boneFlushes     atomic.Int64
	boneMatrices    atomic.Int64
	textureFlushes  atomic.Int64
	textureMatrices atomic.Int64
}

func (c *countingSink) AddAnimationInstance(animation.InstanceID) {
	c.instances.Add(1)
}

func (c *countingSink) SetBoneMatricesAsDirty(_ animation.InstanceID, _ uint32, matrices []math.Mat4) {
	c.boneFlushes.Add(1)
	c.boneMatrices.Add(int64(len(matrices)))
}

func (c *countingSink) SetTextureTransformMatricesAsDirty(_ animation.InstanceID, _ uint32, matrices []math.Mat4) {
	c.textureFlushes.Add(1)
	c.textureMatrices.Add(int64(len(matrices)))
}

// sinkCounts is a snapshot of a countingSink.
type sinkCounts struct {
	Instances       int64
	BoneFlushes     int64
	BoneMatrices    int64
	TextureFlushes  int64
	TextureMatrices int64
}

func (c *countingSink) snapshot() sinkCounts {
	return sinkCounts{
		Instances:       c.instances.Load(),
		BoneFlushes:     c.boneFlushes.Load(),
		BoneMatrices:    c.boneMatrices.Load(),
		TextureFlushes:  c.textureFlushes.Load(),
		TextureMatrices: c.textureMatrices.Load(),
	}
}
