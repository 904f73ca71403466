// Package gridlock provides mutually-exclusive ownership of regions of 3D
// space for concurrent workers, by mapping points into cells of a uniform
// grid overlaid on a fixed bounding volume.
//
// Responsibilities: point-to-cell indexing, per-cell try-locking (three
// interchangeable strategies), per-worker ownership tracking, and
// all-or-nothing region acquisition with rollback.
// Key types: Grid, Handle, Bounds, Strategy.
//
// Workers mint one Handle each via Grid.Handle and must not share it.
// Contention is reported by boolean return, never by error; callers retry
// their higher-level operation or pick different work.
package gridlock
