package animation

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// bumpAllocator hands out buffer offsets without locking. Offsets are never
// returned; reset is the only way to reuse them.
type bumpAllocator struct {
	next atomic.Uint32
}

func (a *bumpAllocator) alloc(n uint32) uint32 {
	return a.next.Add(n) - n
}

func (a *bumpAllocator) used() uint32 {
	return a.next.Load()
}

func (a *bumpAllocator) reset() {
	a.next.Store(0)
}

// storage is the registry behind System.
type storage struct {
	skeletons map[ModelID]*Skeleton
	instances map[InstanceID]*Instance

	// instanceIDs is the ordered live list Update partitions; instanceSlot
	// maps each id to its index there.
	instanceIDs  []InstanceID
	instanceSlot map[InstanceID]int

	boneMatrices             []math.Mat4
	textureTransformMatrices []math.Mat4

	boneAlloc             bumpAllocator
	textureTransformAlloc bumpAllocator

	// dirtyMu guards everything below; workers merge into it once per batch.
	dirtyMu    sync.Mutex
	dirtySet   map[InstanceID]struct{}
	dirtyQueue []InstanceID
	events     []FinishEvent
}

func newStorage() *storage {
	return &storage{
		skeletons:    make(map[ModelID]*Skeleton),
		instances:    make(map[InstanceID]*Instance),
		instanceSlot: make(map[InstanceID]int),
		dirtySet:     make(map[InstanceID]struct{}),
	}
}

func (s *storage) clear() {
	s.skeletons = make(map[ModelID]*Skeleton)
	s.instances = make(map[InstanceID]*Instance)
	s.instanceIDs = s.instanceIDs[:0]
	s.instanceSlot = make(map[InstanceID]int)
	s.boneMatrices = s.boneMatrices[:0]
	s.textureTransformMatrices = s.textureTransformMatrices[:0]
	s.boneAlloc.reset()
	s.textureTransformAlloc.reset()

	s.dirtyMu.Lock()
	s.dirtySet = make(map[InstanceID]struct{})
	s.dirtyQueue = s.dirtyQueue[:0]
	s.events = s.events[:0]
	s.dirtyMu.Unlock()
}

// allocBoneMatrices reserves n bone matrix slots, initialized to identity.
func (s *storage) allocBoneMatrices(n int) uint32 {
	offset := s.boneAlloc.alloc(uint32(n))
	s.boneMatrices = growMatrices(s.boneMatrices, int(s.boneAlloc.used()))
	return offset
}

// allocTextureTransformMatrices reserves n texture transform slots.
func (s *storage) allocTextureTransformMatrices(n int) uint32 {
	offset := s.textureTransformAlloc.alloc(uint32(n))
	s.textureTransformMatrices = growMatrices(s.textureTransformMatrices, int(s.textureTransformAlloc.used()))
	return offset
}

// growMatrices extends buf to n entries. New entries are identity even when
// the backing array is reused after clear.
func growMatrices(buf []math.Mat4, n int) []math.Mat4 {
	old := len(buf)
	if n <= old {
		return buf
	}
	buf = slices.Grow(buf, n-old)[:n]
	identity := math.Identity()
	for i := old; i < n; i++ {
		buf[i] = identity
	}
	return buf
}

func (s *storage) boneMatricesOf(inst *Instance) []math.Mat4 {
	start := int(inst.boneMatrixOffset)
	return s.boneMatrices[start : start+len(inst.bones)]
}

func (s *storage) textureTransformMatricesOf(inst *Instance) []math.Mat4 {
	n := len(inst.skeleton.TextureTransforms)
	if n == 0 {
		return nil
	}
	start := int(inst.textureTransformMatrixOffset)
	return s.textureTransformMatrices[start : start+n]
}

func (s *storage) addLive(id InstanceID) {
	if _, ok := s.instanceSlot[id]; ok {
		return
	}
	s.instanceSlot[id] = len(s.instanceIDs)
	s.instanceIDs = append(s.instanceIDs, id)
}

// removeLive compacts id out of the live list, keeping the order of the rest.
func (s *storage) removeLive(id InstanceID) {
	i, ok := s.instanceSlot[id]
	if !ok {
		return
	}
	delete(s.instanceSlot, id)
	s.instanceIDs = slices.Delete(s.instanceIDs, i, i+1)
	for j := i; j < len(s.instanceIDs); j++ {
		s.instanceSlot[s.instanceIDs[j]] = j
	}
}

// merge records one worker's results.
func (s *storage) merge(dirty []InstanceID, events []FinishEvent) {
	if len(dirty) == 0 && len(events) == 0 {
		return
	}
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()

	for _, id := range dirty {
		if _, queued := s.dirtySet[id]; queued {
			continue
		}
		s.dirtySet[id] = struct{}{}
		s.dirtyQueue = append(s.dirtyQueue, id)
	}
	s.events = append(s.events, events...)
}

// forgetDirty drops id from the dirty set. Its queue entry is skipped at flush.
func (s *storage) forgetDirty(id InstanceID) {
	s.dirtyMu.Lock()
	delete(s.dirtySet, id)
	s.dirtyMu.Unlock()
}

func (s *storage) pushEvent(ev FinishEvent) {
	s.dirtyMu.Lock()
	s.events = append(s.events, ev)
	s.dirtyMu.Unlock()
}

func (s *storage) takeEvents() []FinishEvent {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	events := s.events
	s.events = nil
	return events
}

// reserve pre-sizes the containers. Maps can only be presized on creation,
// so existing entries are copied into larger ones.
func (s *storage) reserve(h ReserveHint) {
	if h.Skeletons > len(s.skeletons) {
		m := make(map[ModelID]*Skeleton, h.Skeletons)
		maps.Copy(m, s.skeletons)
		s.skeletons = m
	}
	if h.Instances > len(s.instances) {
		m := make(map[InstanceID]*Instance, h.Instances)
		maps.Copy(m, s.instances)
		s.instances = m
	}
	if h.Instances > len(s.instanceSlot) {
		m := make(map[InstanceID]int, h.Instances)
		maps.Copy(m, s.instanceSlot)
		s.instanceSlot = m
	}
	if h.Instances > len(s.instanceIDs) {
		s.instanceIDs = slices.Grow(s.instanceIDs, h.Instances-len(s.instanceIDs))
	}
	if h.BoneMatrices > len(s.boneMatrices) {
		s.boneMatrices = slices.Grow(s.boneMatrices, h.BoneMatrices-len(s.boneMatrices))
	}
	if h.TextureTransformMatrices > len(s.textureTransformMatrices) {
		s.textureTransformMatrices = slices.Grow(s.textureTransformMatrices, h.TextureTransformMatrices-len(s.textureTransformMatrices))
	}

	s.dirtyMu.Lock()
	if h.Instances > len(s.dirtySet) {
		m := make(map[InstanceID]struct{}, h.Instances)
		maps.Copy(m, s.dirtySet)
		s.dirtySet = m
	}
	s.dirtyMu.Unlock()
}

// fit releases capacity left over from reserve.
func (s *storage) fit() {
	s.instanceIDs = shrink(s.instanceIDs)
	s.boneMatrices = shrink(s.boneMatrices)
	s.textureTransformMatrices = shrink(s.textureTransformMatrices)
}

func shrink[T any](buf []T) []T {
	if cap(buf) == len(buf) {
		return buf
	}
	return slices.Clone(buf)
}
