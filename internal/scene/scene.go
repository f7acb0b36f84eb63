// Package scene is a headless stand-in for the renderer: it tracks the
// visual handle of every placed anchor, its world bounds, and the hide
// animation that plays before a removed anchor is released.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/arthylene/internal/geom"
)

// DefaultHideFrames is the length of the hide animation in updates.
const DefaultHideFrames = 12

var (
	// ErrUnknownHandle is returned for a handle that was never spawned.
	ErrUnknownHandle = errors.New("unknown scene handle")
	// ErrReleased is returned when a handle is used after release.
	ErrReleased = errors.New("scene handle already released")
)

// Handle identifies one rendered object.
type Handle uint64

type object struct {
	label      string
	bounds     geom.Bounds
	hiding     bool
	framesLeft int
	onHidden   func()
}

// Scene holds live render handles. It is driven from the owner goroutine
// and is not safe for concurrent use.
type Scene struct {
	hideFrames int
	next       Handle
	live       map[Handle]*object
	released   map[Handle]bool
}

// New returns an empty scene whose hide animation lasts hideFrames updates.
func New(hideFrames int) *Scene {
	if hideFrames < 1 {
		hideFrames = 1
	}
	return &Scene{
		hideFrames: hideFrames,
		live:       make(map[Handle]*object),
		released:   make(map[Handle]bool),
	}
}

// Spawn creates an object covering bounds and returns its handle.
func (s *Scene) Spawn(label string, bounds geom.Bounds) Handle {
	s.next++
	s.live[s.next] = &object{label: label, bounds: bounds}
	return s.next
}

func (s *Scene) lookup(h Handle) (*object, error) {
	if o, ok := s.live[h]; ok {
		return o, nil
	}
	if s.released[h] {
		return nil, fmt.Errorf("%w: %d", ErrReleased, h)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
}

// Bounds returns the world bounds of a live object.
func (s *Scene) Bounds(h Handle) (geom.Bounds, bool) {
	o, ok := s.live[h]
	if !ok {
		return geom.Bounds{}, false
	}
	return o.bounds, true
}

// Move replaces the world bounds of a live object.
func (s *Scene) Move(h Handle, bounds geom.Bounds) error {
	o, err := s.lookup(h)
	if err != nil {
		return err
	}
	o.bounds = bounds
	return nil
}

// Hide starts the hide animation; onHidden runs from Update once it
// has played out. Hiding an object twice keeps the first animation.
func (s *Scene) Hide(h Handle, onHidden func()) error {
	o, err := s.lookup(h)
	if err != nil {
		return err
	}
	if o.hiding {
		return nil
	}
	o.hiding = true
	o.framesLeft = s.hideFrames
	o.onHidden = onHidden
	return nil
}

// Animating reports whether h is playing its hide animation.
func (s *Scene) Animating(h Handle) bool {
	o, ok := s.live[h]
	return ok && o.hiding
}

// Release destroys the object. Each handle may be released once.
func (s *Scene) Release(h Handle) error {
	if _, err := s.lookup(h); err != nil {
		return err
	}
	delete(s.live, h)
	s.released[h] = true
	return nil
}

// Released reports whether h has been released.
func (s *Scene) Released(h Handle) bool {
	return s.released[h]
}

// Update advances hide animations by one frame.
func (s *Scene) Update() {
	// Deterministic callback order.
	handles := make([]Handle, 0, len(s.live))
	for h, o := range s.live {
		if o.hiding {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	for _, h := range handles {
		o, ok := s.live[h]
		if !ok || !o.hiding || o.framesLeft <= 0 {
			continue
		}
		o.framesLeft--
		if o.framesLeft == 0 && o.onHidden != nil {
			cb := o.onHidden
			o.onHidden = nil
			cb()
		}
	}
}

// Live returns the number of unreleased objects.
func (s *Scene) Live() int { return len(s.live) }

// Labels returns the labels of the live objects in spawn order.
func (s *Scene) Labels() []string {
	handles := make([]Handle, 0, len(s.live))
	for h := range s.live {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		out = append(out, s.live[h].label)
	}
	return out
}
