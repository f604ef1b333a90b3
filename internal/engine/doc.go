// Package engine contains the coop's tick loop.
//
// A Runner owns the tick counter and the flush pass: each tick runs a body,
// then writes every dirty field to the store before waiting on the Clock.
// Engine plugs the coop rules and the effect scheduler into a Runner and
// journals what happened.
package engine
