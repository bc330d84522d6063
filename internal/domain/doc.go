// Package domain contains the core learning entities (reviewable items and their
// scheduling state) together with the errors shared across layers. It is
// independent of any storage or delivery mechanism.
package domain
