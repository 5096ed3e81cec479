// Package types defines the chain objects replayed by the harness: headers,
// blocks, transactions and withdrawals, together with their RLP encodings,
// keccak hashes and fixture JSON codecs.
//
// # Header Formats
//
// Header shapes differ between protocol versions. Instead of probing a header
// for optional fields, every header carries an explicit HeaderFormat tag:
//
//	FormatLegacy    15 fields (Frontier through Berlin)
//	FormatLondon    + baseFeePerGas
//	FormatShanghai  + baseFeePerGas, withdrawalsRoot
//
// The tag decides which fields are encoded and whether a block body carries
// a withdrawals list. Header.Validate rejects headers whose optional fields
// disagree with their tag.
package types
