package protocol

import "sync/atomic"

// Frame is one body chunk together with its terminal flag.
type Frame struct {
	Data []byte
	Fin  bool
}

// Direction is the terminal flag of one direction of a stream. It only ever
// moves from open to finished.
type Direction struct {
	fin atomic.Bool
}

// Finish marks the direction finished and reports whether this call performed
// the transition.
func (d *Direction) Finish() bool {
	return d.fin.CompareAndSwap(false, true)
}

// Finished reports whether the terminal frame was seen.
func (d *Direction) Finished() bool {
	return d.fin.Load()
}
