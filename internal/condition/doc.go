// Package condition evaluates the small boolean expressions that guard
// scenario command steps.
//
// A condition reads fields of one device's state snapshot and compares them
// with literals:
//
//	device.power != true
//	device.input == 'hdmi1' && not device.extra.muted
//	device.volume >= 20 or device.power == none
//
// The language is deliberately closed: field paths rooted at "device",
// comparisons (== != < <= > >=), boolean combinators (&& || ! and their
// word forms and/or/not), parentheses and literals (true, false, null/none,
// numbers, quoted strings). Keywords are case-insensitive. There are no
// function calls, assignments or arithmetic.
//
// Evaluation fails closed. A malformed expression, a path that does not
// exist in the snapshot, or an ordering comparison between non-numbers
// yields false together with a diagnostic error wrapping ErrSyntax,
// ErrUnknownField or ErrType.
//
// and/or short-circuit left to right, and a right operand that is never
// evaluated is never checked. With the device powered on,
//
//	device.power == true or device.bogus == 1
//
// is true with no diagnostic, while the same unknown field on the left, or
// reached because the left operand is false, fails closed. Only syntax is
// checked for the whole expression, at compile time.
package condition
