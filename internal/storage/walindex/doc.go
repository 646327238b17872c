// Package walindex builds and restores a compact secondary index over a
// write-ahead log segment.
//
// During a build pass every replayed WAL record is folded into an
// Accumulator, which keeps, per table, the live keys in last-write order
// together with the byte offset and length of the record that last wrote
// them. Encode turns the final state into a flat buffer and Persist
// replaces the index file with it. On restart Restore walks the file and
// hands each entry to a ReaderFunc, which can fetch the record payload
// from the named segment instead of replaying the whole log.
//
// File layout (little-endian, packed):
//
//	FileHeader   type:u8=0 | totalSize:i64 | maxVersion:u64 | maxOffset:i64 | nameLen:i32 | name
//	TableHeader  type:u8=1 | tableId:i32 | tableByteSize:i64
//	Entry        keyLen:i32 | offset:i64 | length:i32 | key
//
// A file is one FileHeader followed by one TableHeader plus entry section
// for every table, in table id order. totalSize covers all table sections
// including their headers. Decoders accept the header/body group repeated.
package walindex
