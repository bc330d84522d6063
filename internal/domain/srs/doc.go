// Package srs implements the review-scheduling policies. Each policy is a pure
// function from (current state, outcome signal, now) to a new state; "now" is
// always supplied by the caller and randomness is injected, so every schedule
// is reproducible in tests.
//
// Three policies share the Policy interface:
//   - continuous-quality: SM-2 style ease factor driven by a 0-5 quality grade (flashcards)
//   - binary-comprehension: understood / not understood with a fixed retry delay (video progress)
//   - tiered-difficulty: easy / normal / difficult over a fixed interval ladder (video reviews)
//
// Engine dispatches to the policy registered for a state's PolicyType.
package srs
