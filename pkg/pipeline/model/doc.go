// Package model holds the types shared by the pipeline engine and its options:
// the description of a step, the typed step handle returned to callers, and the
// hooks an option can attach to a pipeline run.
package model
