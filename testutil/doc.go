// Package testutil provides testing utilities for vecserve.
//
// It backs tests and the `vecserve gen` command, so generated
// snapshots are reproducible from a seed.
//
//	rng := testutil.NewRNG(seed)
//	data := rng.UnitVectors(1000, 64)
//	truth := testutil.ExactCosineTopK(query, data, 10)
package testutil
