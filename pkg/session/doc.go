// Package session stores temperature sessions in a single append-only
// session log.
//
// The log is a concatenation of session records. Each record is an
// 8-byte big-endian start timestamp (seconds since the Unix epoch)
// followed by one byte per sample. A closed record ends with the
// EndOfSession byte (0xFF); the last record in the log is the open one
// and has no terminator, its end is the end of the file.
//
// Invariants:
// - Every write appends at the end of the log; nothing is rewritten
//   except by compaction.
// - 0xFF is never stored as a sample.
// - BeginSession and AddSample sync the file before returning.
// - A truncated trailing header is dropped by the reader, never reported.
//
// Usage:
//
//	store, _ := session.Open(afero.NewOsFs(), "/var/lib/templog/sess")
//	_ = store.BeginSession(ctx)
//	_ = store.AddSample(ctx, 21)
//	records, _ := store.ReadSessions(ctx, false)
//	_ = records
package session
