// Package session is the placement state machine.
//
// A Session moves between Idle, Scanning, Placing and Viewing. After a
// map is loaded it stays uninitialized, ignoring touches with an empty
// anchor list, until the engine reports the first relocalization
// against that map. It then loads the saved anchors and, in Placing
// mode, turns touches into selections or new placements.
//
// All state belongs to one owner goroutine: the caller of Tick and
// HandleEvent, or Run, which also executes closures passed to Do. The
// only other goroutine is the map save worker, which talks to the
// engine and reports back over a channel polled by Tick.
package session
