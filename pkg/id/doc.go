// Package id provides a 128-bit, lexicographically sortable identifier used
// to name exported archive objects.
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence], so
// byte-wise (and hex string) comparison follows creation order within one
// process, even when the wall clock steps backwards.
//
//	g := id.NewGenerator()
//	key := fmt.Sprintf("%s.jsonl", g.Next())
package id
