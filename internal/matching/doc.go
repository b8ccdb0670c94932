// Package matching decides whether an incoming venue mention refers to an
// existing ActivityNode.
//
// A mention is compared against every active node of the same city using a
// combination of fuzzy name similarity (Jaro-Winkler over normalised names)
// and geographic proximity (haversine distance). All thresholds and weights
// live in Weights so they can be tuned without touching the resolver.
package matching
