package animation

import (
	"go.uber.org/zap"
)

// Update advances every live instance by deltaTime seconds (scaled by the
// time scale), then flushes up to DirtyThrottle changed instances to the
// pose sink. It blocks until all work is done.
func (s *System) Update(deltaTime float32) {
	if !s.enabled {
		return
	}
	if !s.updating.CompareAndSwap(false, true) {
		s.log.Error("re-entrant update")
		return
	}
	defer s.updating.Store(false)

	dt := deltaTime * s.timeScale
	st := s.storage
	ids := st.instanceIDs

	s.scheduler.ParallelFor(len(ids), func(start, end int) {
		var dirty []InstanceID
		var events []FinishEvent
		for _, id := range ids[start:end] {
			inst, ok := st.instances[id]
			if !ok {
				continue
			}
			if s.updateInstance(inst, dt, &events) {
				dirty = append(dirty, id)
			}
		}
		st.merge(dirty, events)
	})

	s.flushDirty()
}

// updateInstance evaluates one instance into its buffer slots and reports
// whether any matrix changed.
func (s *System) updateInstance(inst *Instance, dt float32, events *[]FinishEvent) bool {
	inst.advanceGlobalLoops(dt)

	changed := false
	bones := s.storage.boneMatricesOf(inst)
	for i := range inst.bones {
		advanceBone(inst, i, dt, events)

		m := boneLocalMatrix(inst, i)
		// Parents precede children, so the parent's slot already holds this frame's value.
		if p := inst.bones[i].parent; p >= 0 {
			m = bones[p].Mul(m)
		}
		if !sameBits(&bones[i], &m) {
			bones[i] = m
			inst.dirtyBones.include(i)
			changed = true
		}
	}

	textures := s.storage.textureTransformMatricesOf(inst)
	for i := range textures {
		m := textureTransformMatrix(inst, i)
		if !sameBits(&textures[i], &m) {
			textures[i] = m
			inst.dirtyTextureTransforms.include(i)
			changed = true
		}
	}
	return changed
}

// flushDirty hands queued instances to the sink in FIFO order until the
// throttle is reached. The rest stay queued for later frames.
func (s *System) flushDirty() {
	batch, backlog := s.popDirty()
	for _, inst := range batch {
		s.flushInstance(inst)
	}
	if backlog > 0 {
		s.log.Debug("dirty instances deferred",
			zap.Int("flushed", len(batch)),
			zap.Int("backlog", backlog))
	}
}

// popDirty dequeues up to the throttle of still-dirty instances.
func (s *System) popDirty() (batch []*Instance, backlog int) {
	st := s.storage
	st.dirtyMu.Lock()
	defer st.dirtyMu.Unlock()

	budget := s.throttle
	if budget <= 0 {
		budget = len(st.dirtyQueue)
	}

	i := 0
	for ; i < len(st.dirtyQueue) && len(batch) < budget; i++ {
		id := st.dirtyQueue[i]
		if _, ok := st.dirtySet[id]; !ok {
			// Removed since it was queued.
			continue
		}
		delete(st.dirtySet, id)
		if inst, ok := st.instances[id]; ok {
			batch = append(batch, inst)
		}
	}
	st.dirtyQueue = append(st.dirtyQueue[:0], st.dirtyQueue[i:]...)
	return batch, len(st.dirtySet)
}

func (s *System) flushInstance(inst *Instance) {
	st := s.storage
	if r := inst.dirtyBones; !r.empty() {
		start := int(inst.boneMatrixOffset) + r.start
		end := int(inst.boneMatrixOffset) + r.end
		s.sink.SetBoneMatricesAsDirty(inst.id, uint32(start), st.boneMatrices[start:end])
		inst.dirtyBones.reset()
	}
	if r := inst.dirtyTextureTransforms; !r.empty() {
		start := int(inst.textureTransformMatrixOffset) + r.start
		end := int(inst.textureTransformMatrixOffset) + r.end
		s.sink.SetTextureTransformMatricesAsDirty(inst.id, uint32(start), st.textureTransformMatrices[start:end])
		inst.dirtyTextureTransforms.reset()
	}
}
