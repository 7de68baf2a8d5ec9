package animation

// Keyframe is a timestamped value. Time is in milliseconds.
type Keyframe[T any] struct {
	Time  float32
	Value T
}

// interpolate samples a time-ordered track at progressMs. Outside the track's
// range the nearest endpoint is returned; an empty track yields def.
func interpolate[T any](keys []Keyframe[T], progressMs float32, mix func(a, b T, t float32) T, def T) T {
	switch len(keys) {
	case 0:
		return def
	case 1:
		return keys[0].Value
	}

	if progressMs <= keys[0].Time {
		return keys[0].Value
	}
	last := len(keys) - 1
	if progressMs >= keys[last].Time {
		return keys[last].Value
	}

	// First key strictly after progress; keys[next-1] is at or before it.
	lo, hi := 1, last
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid].Time > progressMs {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	k0, k1 := keys[lo-1], keys[lo]

	t := float32(0)
	if k1.Time != k0.Time {
		t = (progressMs - k0.Time) / (k1.Time - k0.Time)
	}
	return mix(k0.Value, k1.Value, t)
}
