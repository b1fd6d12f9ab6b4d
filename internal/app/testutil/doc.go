// Package testutil provides in-memory fakes and fixtures for pipeline tests.
//
//   - MemoryStore: repository.Store backed by maps, with per-method error injection
//   - MockTranscriber: provider.Transcriber returning scripted results
//   - MockEnqueuer / RecordingSink: capture queue submissions and events
//   - FakeAudio: audio.Utility that writes segment files of a chosen size
//   - MockTransport: transport.Transport serving bytes from memory
//   - WithTestStore: a migrated in-memory sqlite store
//
// Fakes are safe for concurrent use.
package testutil
