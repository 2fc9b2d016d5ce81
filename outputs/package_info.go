// Package outputs reads the records that a Kinesis Data Analytics application writes to its
// output streams.
//
// A StreamReader remembers, for every partition (shard) of a stream, where the previous read
// stopped, so that each call to Poll returns only records that are new since the last call.
// An OutputCache polls a reader in the background and accumulates everything it has seen,
// so that assertions can be evaluated against the complete output of a test at any time.
package outputs
