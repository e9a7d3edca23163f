// Package pipeline runs a chain of steps connected by channels.
//
// A pipeline starts from root steps that produce elements, passes them through
// one-to-one steps and ends in sinks. Every step runs in its own goroutine. A
// step configured with a concurrency of one handles a single element at a
// time and reads the next element only after the previous one was pushed
// downstream, so the order of the input is kept.
//
// The first error returned by any step stops the whole pipeline: the shared
// context is cancelled, steps blocked on a channel give up and Run returns
// that error. Options (see the measure and drawer packages) observe the steps
// while the pipeline is built and while it runs.
package pipeline
