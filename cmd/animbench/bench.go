package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/assets"
	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/engine/animation"
	"github.com/Faultbox/midgard-anim/pkg/formats"
)

var (
	// errNoModels is returned when no model definition could be loaded.
	errNoModels = errors.New("no animatable models")
	// errNoInstances is returned by Run when nothing was spawned.
	errNoInstances = errors.New("no instances spawned")
)

// loadedModel is a model registered with the animation system.
type loadedModel struct {
	id    animation.ModelID
	name  string
	asset *formats.AnimatedModel
	anim  animation.AnimationID // first registered animation
}

// bench owns the asset manager, the animation system and the spawned instances.
type bench struct {
	cfg     *config.Config
	log     *zap.Logger
	assets  *assets.Manager
	sys     *animation.System
	sink    *countingSink
	watcher *assets.Watcher

	models    []loadedModel
	instances map[animation.InstanceID]*loadedModel
}

func newBench(cfg *config.Config, log *zap.Logger) (*bench, error) {
	mgr := assets.NewManager()
	for _, dir := range cfg.Data.ModelDirs {
		if err := mgr.AddDir(dir); err != nil {
			return nil, err
		}
	}

	sink := &countingSink{}
	sched := animation.NewGroupScheduler(cfg.Animation.Workers).WithBatchSize(cfg.Animation.BatchSize)
	animCfg := animation.Config{
		Enabled:       cfg.Animation.Enabled,
		TimeScale:     cfg.Animation.TimeScale,
		DirtyThrottle: cfg.Animation.DirtyThrottle,
	}
	sys := animation.New(animCfg,
		animation.WithLogger(log.Named("animation")),
		animation.WithScheduler(sched),
		animation.WithPoseSink(sink))

	b := &bench{
		cfg:    cfg,
		log:    log,
		assets: mgr,
		sys:    sys,
		sink:   sink,
	}

	models, err := b.loadModels()
	if err != nil {
		return nil, err
	}
	b.populate(models)

	if cfg.Bench.Watch {
		w, err := mgr.Watch()
		if err != nil {
			return nil, err
		}
		b.watcher = w
	}

	log.Info("bench ready",
		zap.Int("models", len(b.models)),
		zap.Int("instances", len(b.instances)),
		zap.Int("workers", sched.Workers()))
	return b, nil
}

// loadModels parses every configured model. Models without bones or
// sequences are skipped.
func (b *bench) loadModels() ([]loadedModel, error) {
	names := b.cfg.Data.Models
	if len(names) == 0 {
		var err error
		if names, err = b.assets.List(); err != nil {
			return nil, err
		}
	}

	var models []loadedModel
	for _, name := range names {
		asset, err := b.assets.Load(name)
		if err != nil {
			return nil, err
		}
		if !asset.HasAnimation() {
			b.log.Warn("model has nothing to animate", zap.String("model", name))
			continue
		}
		models = append(models, loadedModel{
			id:    animation.ModelID(len(models)),
			name:  name,
			asset: asset,
		})
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoModels, strings.Join(b.assets.Dirs(), ", "))
	}
	return models, nil
}

// populate registers skeletons and spawns instances round-robin over models,
// each playing its model's first animation.
func (b *bench) populate(models []loadedModel) {
	n := b.cfg.Bench.Instances
	bones, textures := 0, 0
	for i := 0; i < n; i++ {
		m := models[i%len(models)].asset
		bones += len(m.Bones)
		textures += len(m.TextureTransforms)
	}
	b.sys.Reserve(animation.ReserveHint{
		Skeletons:                len(models),
		Instances:                n,
		BoneMatrices:             bones,
		TextureTransformMatrices: textures,
	})

	b.models = models
	for i := range b.models {
		m := &b.models[i]
		if !b.sys.AddSkeleton(m.id, m.asset) {
			b.log.Warn("skeleton rejected", zap.String("model", m.name))
		}
		m.anim = firstAnimation(b.sys.Skeleton(m.id))
	}

	b.instances = make(map[animation.InstanceID]*loadedModel, n)
	for i := 0; i < n; i++ {
		id := animation.InstanceID(i)
		m := &b.models[i%len(b.models)]
		if !b.sys.AddInstance(m.id, id) {
			continue
		}
		b.instances[id] = m
		b.play(id, m)
	}
	b.sys.FitToBuffersAfterLoad()
}

func (b *bench) play(id animation.InstanceID, m *loadedModel) {
	if m.anim == animation.InvalidAnimationID {
		return
	}
	b.sys.SetBoneSequence(id, animation.KeyBoneDefault, m.anim, 0, animation.BlendAuto, true)
}

// firstAnimation returns the animation of the lowest registered sequence.
func firstAnimation(sk *animation.Skeleton) animation.AnimationID {
	if sk == nil {
		return animation.InvalidAnimationID
	}
	for i, seq := range sk.Sequences {
		if sk.SequenceFor(seq.Animation) == animation.SequenceID(i) {
			return seq.Animation
		}
	}
	return animation.InvalidAnimationID
}

// reload rebuilds everything from disk. On failure the current state is kept.
func (b *bench) reload() {
	models, err := b.loadModels()
	if err != nil {
		b.log.Error("reload failed, keeping current models", zap.Error(err))
		return
	}
	b.sys.Clear()
	b.populate(models)
	b.log.Info("models reloaded", zap.Int("models", len(models)))
}

// report summarizes a finished run.
type report struct {
	Frames    int
	Elapsed   time.Duration
	Completed int
	Replaced  int
	Reloads   int
	Sink      sinkCounts
	Stats     animation.Stats
}

func (r report) String() string {
	perFrame := time.Duration(0)
	if r.Frames > 0 {
		perFrame = r.Elapsed / time.Duration(r.Frames)
	}
	return fmt.Sprintf(
		"frames=%d elapsed=%s per_frame=%s instances=%d bone_flushes=%d bone_matrices=%d texture_flushes=%d completed=%d replaced=%d reloads=%d backlog=%d",
		r.Frames, r.Elapsed, perFrame, r.Stats.Instances,
		r.Sink.BoneFlushes, r.Sink.BoneMatrices, r.Sink.TextureFlushes,
		r.Completed, r.Replaced, r.Reloads, r.Stats.DirtyBacklog)
}

// Run steps the system at the configured frame rate until the frame count is
// reached or ctx is done. A frame count <= 0 runs until ctx is done. Frames
// are not paced to wall time.
func (b *bench) Run(ctx context.Context) (report, error) {
	var r report
	if len(b.instances) == 0 {
		return r, errNoInstances
	}
	dt := 1 / float32(b.cfg.Bench.FrameRate)
	start := time.Now()

	for frame := 0; b.cfg.Bench.Frames <= 0 || frame < b.cfg.Bench.Frames; frame++ {
		if err := ctx.Err(); err != nil {
			break
		}
		if b.pollWatcher() {
			b.reload()
			r.Reloads++
		}

		before := b.sink.boneFlushes.Load()
		b.sys.Update(dt)
		b.sys.DrainEvents(func(ev animation.FinishEvent) {
			switch ev.Reason {
			case animation.FinishCompleted:
				r.Completed++
				// Loop non-looping animations by replaying them.
				if m, ok := b.instances[ev.Instance]; ok {
					b.play(ev.Instance, m)
				}
			case animation.FinishReplaced, animation.FinishPreempted:
				r.Replaced++
			}
		})
		r.Frames++

		b.log.Debug("frame",
			zap.Int("frame", frame),
			zap.Int64("flushed", b.sink.boneFlushes.Load()-before))
	}

	r.Elapsed = time.Since(start)
	r.Sink = b.sink.snapshot()
	r.Stats = b.sys.Stats()
	return r, nil
}

// pollWatcher reports whether any model changed since the last frame.
func (b *bench) pollWatcher() bool {
	if b.watcher == nil {
		return false
	}
	changed := false
	for {
		select {
		case name, ok := <-b.watcher.Events:
			if !ok {
				b.watcher = nil
				return changed
			}
			b.log.Info("model changed", zap.String("model", name))
			changed = true
		case err, ok := <-b.watcher.Errors:
			if !ok {
				b.watcher = nil
				return changed
			}
			b.log.Warn("watch error", zap.Error(err))
		default:
			return changed
		}
	}
}

// Close stops watching and releases the loaded models.
func (b *bench) Close() {
	if b.watcher != nil {
		if err := b.watcher.Close(); err != nil {
			b.log.Warn("closing watcher", zap.Error(err))
		}
	}
	b.sys.Clear()
	b.assets.Close()
}
