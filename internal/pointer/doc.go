// Package pointer turns pointer motion into stick deflection.
//
// Smoother keeps a weighted moving average of pointer displacements from
// the screen center. Sampler decays that average at a fixed rate and feeds
// it to the engine as a stick value while panning is active. Terminal is a
// pointer source for terminals with mouse tracking.
package pointer
