// Package services implements the driving ports on top of the driven ones.
//
// Seeder runs a city through ingest, resolve, tag, score, publish and
// verify, saving a checkpoint after every step. Each step lives in its own
// file; the rest of the package covers sources, settings, dead letters,
// excerpt retention and the scheduler.
package services
