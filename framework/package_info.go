// Package framework contains infrastructure shared by every part of the quality toolkit
// that is not specific to Kinesis or Kinesis Data Analytics. The base package holds the
// Logger abstraction; the subpackages hold polling and retry primitives (helpers) and
// the Maybe type (opt).
//
// The toolkit's model is:
//
// 1. A test writes records into the input stream of a deployed Kinesis Data Analytics
// application.
//
// 2. The toolkit reads the application's output streams in the background, accumulating
// every record it has seen since the test began.
//
// 3. Assertions about the accumulated records are retried until they pass or a deadline
// elapses, and failures are reported through a test context similar to Go's testing.T.
package framework
