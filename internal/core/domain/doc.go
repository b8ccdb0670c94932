// Package domain holds the types a city seeding run passes between its
// steps, and the rules that belong to them.
//
// A run moves data through three shapes. Connectors emit RawSignals, one
// per venue mention. Resolution folds them into ActivityNodes, keeping
// each contributing mention as a QualitySignal. A PipelineCheckpoint
// records how far the run got so an interrupted run picks up at the step
// it stopped in; fetches that keep failing end up as DeadLetterEntries.
//
// Nothing here performs I/O, and the package imports only the standard
// library.
package domain
