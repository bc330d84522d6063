// Package events provides the in-process event bus used to announce review
// activity.
//
// Services emit events without knowing which handlers process them. The
// review service emits OutcomeRecorded after every committed outcome and the
// due poller emits DueItemsAvailable when the due queue is non-empty.
package events
