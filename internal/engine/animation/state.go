package animation

import gomath "math"

// advanceBone runs one frame of a bone's playback state machine.
//
// Idle:          current inactive.
// Playing:       current active, nothing pending.
// Transitioning: current and next active, timeToTransition > 0.
// Swapping:      next active and either timeToTransition <= 0 or current
//                idle; next is promoted and then advanced like current.
func advanceBone(inst *Instance, boneIdx int, dt float32, events *[]FinishEvent) {
	sk := inst.skeleton
	b := &inst.bones[boneIdx]

	if b.next.active() && (!b.current.active() || b.timeToTransition <= 0) {
		if b.current.active() && b.current.Notify {
			*events = append(*events, FinishEvent{
				Instance: inst.id,
				Bone:     int16(boneIdx),
				From:     b.current.Animation,
				To:       b.next.Animation,
				Reason:   FinishReplaced,
			})
		}
		b.current = b.next
		b.next = idleState()
		b.timeToTransition = 0
		b.transitionDuration = 0
	}

	if !b.current.active() {
		return
	}

	seq := &sk.Sequences[b.current.Sequence]
	loops := seq.Loops() && b.current.Flags&FlagPlayOnce == 0
	if b.current.Flags&FlagFrozen == 0 {
		b.current.Progress += dt
	}

	if b.next.active() {
		next := &sk.Sequences[b.next.Sequence]
		b.next.Progress = min(b.next.Progress+dt, next.Duration)
		b.timeToTransition = max(b.timeToTransition-dt, 0)
	} else if loops {
		if switchToVariation(sk, b, seq) {
			seq = &sk.Sequences[b.current.Sequence]
			loops = seq.Loops() && b.current.Flags&FlagPlayOnce == 0
		} else {
			queueLoopTransition(sk, b, seq)
		}
	}

	if b.current.Progress < seq.Duration {
		return
	}

	if loops {
		if seq.Duration <= 0 {
			b.current.Progress = 0
			return
		}
		b.current.Progress = wrap(b.current.Progress, seq.Duration)
		return
	}

	b.current.Progress = seq.Duration
	switch {
	case b.current.Flags&FlagFrozen != 0:
		// Already holding the last frame.
	case b.current.Flags&FlagFreeze != 0:
		b.current.Flags |= FlagFrozen
		if !b.next.active() {
			emitCompleted(inst, boneIdx, &b.current, events)
		}
	case b.next.active():
		// Hold the last frame until the pending sequence takes over.
	default:
		emitCompleted(inst, boneIdx, &b.current, events)
		b.current = idleState()
	}
}

// switchToVariation replaces an ended loop with its next variation in the
// same frame when there is no blend window to cross over in.
func switchToVariation(sk *Skeleton, b *boneInstance, seq *Sequence) bool {
	if seq.NextVariation == InvalidSequenceID || b.current.BlendEnd > 0 {
		return false
	}
	if b.current.Progress < seq.Duration {
		return false
	}
	overshoot := b.current.Progress - seq.Duration
	if seq.Duration > 0 {
		overshoot = wrap(overshoot, seq.Duration)
	}
	b.current.Sequence = seq.NextVariation
	b.current.Animation = sk.Sequences[seq.NextVariation].Animation
	b.current.Progress = overshoot
	return true
}

// queueLoopTransition blends a looping sequence into its next variation (or
// itself) once it enters its trailing blend window.
func queueLoopTransition(sk *Skeleton, b *boneInstance, seq *Sequence) {
	window := min(b.current.BlendEnd, seq.Duration)
	if window <= 0 {
		return
	}
	windowStart := seq.Duration - window
	if b.current.Progress < windowStart {
		return
	}

	target := seq.NextVariation
	if target == InvalidSequenceID {
		target = b.current.Sequence
	}
	overshoot := wrap(b.current.Progress-windowStart, seq.Duration)

	b.next = b.current
	b.next.Sequence = target
	b.next.Animation = sk.Sequences[target].Animation
	b.next.Progress = overshoot
	b.next.BlendStart = window
	b.timeToTransition = max(window-overshoot, 0)
	b.transitionDuration = window

	// The continuation reports completion, not every lap.
	b.current.Notify = false
}

func emitCompleted(inst *Instance, boneIdx int, st *sequenceState, events *[]FinishEvent) {
	if !st.Notify {
		return
	}
	*events = append(*events, FinishEvent{
		Instance: inst.id,
		Bone:     int16(boneIdx),
		From:     st.Animation,
		To:       InvalidAnimationID,
		Reason:   FinishCompleted,
	})
	st.Notify = false
}

// wrap returns t modulo duration. duration must be positive.
func wrap(t, duration float32) float32 {
	return float32(gomath.Mod(float64(t), float64(duration)))
}
