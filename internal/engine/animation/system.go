package animation

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Config holds the runtime-tunable settings.
type Config struct {
	Enabled bool
	// TimeScale multiplies every Update's delta time.
	TimeScale float32
	// DirtyThrottle caps instances flushed to the sink per Update; <= 0 flushes all.
	DirtyThrottle int
}

// DefaultConfig returns an enabled system at normal speed.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		TimeScale:     1,
		DirtyThrottle: 256,
	}
}

// ReserveHint sizes containers ahead of a bulk load.
type ReserveHint struct {
	Skeletons                int
	Instances                int
	BoneMatrices             int
	TextureTransformMatrices int
}

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger. Defaults to the global logger named "animation".
func WithLogger(log *zap.Logger) Option {
	return func(s *System) { s.log = log }
}

// WithScheduler sets the parallel executor. Defaults to a GroupScheduler.
func WithScheduler(sched Scheduler) Option {
	return func(s *System) { s.scheduler = sched }
}

// WithPoseSink sets the receiver of evaluated poses. Defaults to discarding them.
func WithPoseSink(sink PoseSink) Option {
	return func(s *System) { s.sink = sink }
}

// System evaluates all animated instances.
type System struct {
	log       *zap.Logger
	scheduler Scheduler
	sink      PoseSink

	enabled   bool
	timeScale float32
	throttle  int

	// updating is set for the duration of Update.
	updating atomic.Bool

	storage *storage
}

// New creates a System.
func New(cfg Config, opts ...Option) *System {
	s := &System{
		enabled:   cfg.Enabled,
		timeScale: cfg.TimeScale,
		throttle:  cfg.DirtyThrottle,
		storage:   newStorage(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("animation")
	}
	if s.scheduler == nil {
		s.scheduler = NewGroupScheduler(0)
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	return s
}

// Enabled reports whether the system is active.
func (s *System) Enabled() bool { return s.enabled }

// SetEnabled turns the system on or off. While off every call is a no-op.
func (s *System) SetEnabled(enabled bool) { s.enabled = enabled }

// TimeScale returns the global playback speed multiplier.
func (s *System) TimeScale() float32 { return s.timeScale }

// SetTimeScale sets the global playback speed multiplier.
func (s *System) SetTimeScale(scale float32) { s.timeScale = scale }

// DirtyThrottle returns the per-frame flush budget.
func (s *System) DirtyThrottle() int { return s.throttle }

// SetDirtyThrottle sets the per-frame flush budget; <= 0 flushes everything.
func (s *System) SetDirtyThrottle(n int) { s.throttle = n }

// mutable reports whether a mutating call may proceed.
func (s *System) mutable(op string) bool {
	if !s.enabled {
		return false
	}
	if s.updating.Load() {
		s.log.Error("mutation while updating", zap.String("op", op))
		return false
	}
	return true
}

// HasSkeleton reports whether a skeleton exists for model.
func (s *System) HasSkeleton(model ModelID) bool {
	if !s.enabled {
		return false
	}
	_, ok := s.storage.skeletons[model]
	return ok
}

// Skeleton returns the skeleton of model, or nil.
func (s *System) Skeleton(model ModelID) *Skeleton {
	if !s.enabled {
		return nil
	}
	return s.storage.skeletons[model]
}

// AddSkeleton builds and publishes the skeleton of model. It fails when one
// already exists or the asset has no bones or no sequences.
func (s *System) AddSkeleton(model ModelID, asset *formats.AnimatedModel) bool {
	if !s.mutable("AddSkeleton") || asset == nil {
		return false
	}
	if _, exists := s.storage.skeletons[model]; exists {
		s.log.Debug("skeleton already added", zap.Uint32("model", uint32(model)))
		return false
	}
	if !asset.HasAnimation() {
		s.log.Debug("model has nothing to animate",
			zap.Uint32("model", uint32(model)),
			zap.Int("bones", len(asset.Bones)),
			zap.Int("sequences", len(asset.Sequences)))
		return false
	}

	s.storage.skeletons[model] = newSkeleton(model, asset, s.log)
	return true
}

// HasInstance reports whether id is registered.
func (s *System) HasInstance(id InstanceID) bool {
	if !s.enabled {
		return false
	}
	_, ok := s.storage.instances[id]
	return ok
}

// AddInstance registers id as an instance of model with every bone idle.
func (s *System) AddInstance(model ModelID, id InstanceID) bool {
	if !s.mutable("AddInstance") {
		return false
	}
	st := s.storage
	sk, ok := st.skeletons[model]
	if !ok {
		s.log.Debug("no skeleton for instance",
			zap.Uint32("model", uint32(model)),
			zap.Uint32("instance", uint32(id)))
		return false
	}
	if _, exists := st.instances[id]; exists {
		s.log.Warn("instance already added",
			zap.Uint32("model", uint32(model)),
			zap.Uint32("instance", uint32(id)))
		return false
	}

	inst := newInstance(sk, id)
	inst.boneMatrixOffset = st.allocBoneMatrices(len(sk.Bones))
	if n := len(sk.TextureTransforms); n > 0 {
		inst.textureTransformMatrixOffset = st.allocTextureTransformMatrices(n)
	}

	st.instances[id] = inst
	st.addLive(id)
	s.sink.AddAnimationInstance(id)
	return true
}

// RemoveInstance unregisters id. Its matrix buffer slots are not reused
// until Clear.
func (s *System) RemoveInstance(id InstanceID) bool {
	if !s.mutable("RemoveInstance") {
		return false
	}
	st := s.storage
	if _, ok := st.instances[id]; !ok {
		return false
	}
	delete(st.instances, id)
	st.forgetDirty(id)
	st.removeLive(id)
	return true
}

// InstanceCount returns the number of live instances.
func (s *System) InstanceCount() int {
	return len(s.storage.instanceIDs)
}

// Reserve grows the containers ahead of a bulk load.
func (s *System) Reserve(h ReserveHint) {
	if !s.mutable("Reserve") {
		return
	}
	s.storage.reserve(h)
}

// FitToBuffersAfterLoad releases capacity Reserve allocated but the load did not use.
func (s *System) FitToBuffersAfterLoad() {
	if !s.mutable("FitToBuffersAfterLoad") {
		return
	}
	s.storage.fit()
	s.log.Debug("buffers fitted",
		zap.Int("instances", len(s.storage.instanceIDs)),
		zap.Int("bone_matrices", len(s.storage.boneMatrices)),
		zap.Int("texture_transform_matrices", len(s.storage.textureTransformMatrices)))
}

// Clear drops every skeleton, instance and buffer slot. Like every other
// mutator it does nothing while the system is disabled.
func (s *System) Clear() {
	if !s.mutable("Clear") {
		return
	}
	s.storage.clear()
}

// BoneMatrices returns a copy of the instance's current world bone matrices.
func (s *System) BoneMatrices(id InstanceID) ([]math.Mat4, bool) {
	if !s.enabled {
		return nil, false
	}
	inst, ok := s.storage.instances[id]
	if !ok {
		return nil, false
	}
	out := make([]math.Mat4, len(inst.bones))
	copy(out, s.storage.boneMatricesOf(inst))
	return out, true
}

// TextureTransformMatrices returns a copy of the instance's texture transform matrices.
func (s *System) TextureTransformMatrices(id InstanceID) ([]math.Mat4, bool) {
	if !s.enabled {
		return nil, false
	}
	inst, ok := s.storage.instances[id]
	if !ok {
		return nil, false
	}
	src := s.storage.textureTransformMatricesOf(inst)
	out := make([]math.Mat4, len(src))
	copy(out, src)
	return out, true
}

// DrainEvents passes every queued FinishEvent to fn in emission order and
// returns how many there were.
func (s *System) DrainEvents(fn func(FinishEvent)) int {
	events := s.storage.takeEvents()
	for _, ev := range events {
		fn(ev)
	}
	return len(events)
}

// Stats is a snapshot of registry sizes.
type Stats struct {
	Skeletons                int
	Instances                int
	BoneMatrices             int
	TextureTransformMatrices int
	DirtyBacklog             int
}

// Stats returns current registry sizes.
func (s *System) Stats() Stats {
	st := s.storage
	st.dirtyMu.Lock()
	backlog := len(st.dirtySet)
	st.dirtyMu.Unlock()
	return Stats{
		Skeletons:                len(st.skeletons),
		Instances:                len(st.instanceIDs),
		BoneMatrices:             int(st.boneAlloc.used()),
		TextureTransformMatrices: int(st.textureTransformAlloc.used()),
		DirtyBacklog:             backlog,
	}
}
