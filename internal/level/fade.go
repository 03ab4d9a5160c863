package level

import "time"

// FadeDirection is the direction of a screen fade.
type FadeDirection int

const (
	FadeNone FadeDirection = iota
	FadeOut
	FadeIn
)

// Fade models the screen transition around a level change. The owner
// advances it with the tick delta; Advance reports the direction that just
// completed.
type Fade struct {
	duration time.Duration
	elapsed  time.Duration
	dir      FadeDirection
}

// NewFade returns an idle fade taking d per direction.
func NewFade(d time.Duration) *Fade {
	return &Fade{duration: d}
}

// Start begins a fade in the given direction, restarting any fade in
// progress.
func (f *Fade) Start(dir FadeDirection) {
	f.dir = dir
	f.elapsed = 0
}

// Active reports whether a fade is running.
func (f *Fade) Active() bool { return f.dir != FadeNone }

// Direction returns the running direction.
func (f *Fade) Direction() FadeDirection { return f.dir }

// Advance moves the fade forward by dt. When the running direction
// completes it returns that direction and the fade becomes idle.
func (f *Fade) Advance(dt time.Duration) FadeDirection {
	if f.dir == FadeNone {
		return FadeNone
	}
	f.elapsed += dt
	if f.elapsed < f.duration {
		return FadeNone
	}
	done := f.dir
	f.dir = FadeNone
	f.elapsed = 0
	return done
}

// Alpha returns the screen cover in [0, 1]: 1 is fully black.
func (f *Fade) Alpha() float64 {
	if f.dir == FadeNone || f.duration <= 0 {
		return 0
	}
	p := float64(f.elapsed) / float64(f.duration)
	p = min(max(p, 0), 1)
	if f.dir == FadeOut {
		return p
	}
	return 1 - p
}
