// Package battery describes the experiment invocations of the jitsdp tool as
// data.
//
// A Battery is an ordered list of groups. A group names a subcommand, the
// flags shared by all of its invocations and one flag set per variant.
// Expanding a battery yields the invocations in group order then variant
// order:
//
//	- subcommand: borb
//	  flags: {start: 0, end: 5000, experiment-name: borb-wp}
//	  variants:
//	    - {model: ihf}
//	    - {model: lr}
//
// expands to "borb --start 0 --end 5000 --experiment-name borb-wp --model ihf"
// followed by the same line with "--model lr".
package battery
