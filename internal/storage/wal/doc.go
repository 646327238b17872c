// Package wal provides the write-ahead log of metadata row mutations.
//
// Every insert, update and delete is appended here before it is applied
// in memory; recovery replays the segments in order.
//
// Segment format:
//
//	wal-<segment-id>.log
//	[magic:8 "MSTAWAL\x01"]
//	[Entry]*
//	[checksum:32 SHA-256 of all bytes above] (absent on the active segment)
//
// Entry wire format:
//
//	[Length:4][CRC32:4][Type:1][Payload:Length-5]
//
// Where:
//   - Length = CRC32 + Type + Payload (big-endian uint32)
//   - CRC32 covers Type+Payload (IEEE)
//   - Type = table*10 + action
//   - Payload is JSON; row values may be sealed with an adaptive cipher
//     bound to the type byte and key
//
// Readers report each record's Position so a secondary index can point
// straight at it and ReadFrameAt can load it without a scan.
package wal
