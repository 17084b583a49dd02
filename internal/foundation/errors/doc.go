// Package errors provides the classified error primitives used across assetbuilder.
//
// Every failure the tool reports falls in one of three families:
//
//   - transform errors (CategoryTransform): one file could not be processed by a step.
//     They carry warning severity; the file is dropped and the run continues.
//   - filesystem errors (CategoryFileSystem): the task run that hit them is aborted,
//     other tasks keep going.
//   - setup errors (CategorySetup): a mode could not start at all. Watch mode exits.
//
// Example usage:
//
//	err := errors.TransformError("sass compile failed").
//		ForFile("sass", "scss/style.scss").
//		WithCause(compileErr).
//		Build()
package errors
