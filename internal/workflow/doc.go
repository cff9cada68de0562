// Package workflow advances recordings through the archival pipeline.
//
// The Manager polls the queue, reclaims stale work via heartbeats, and hands
// batches of eligible recordings to the Scheduler. The Scheduler starts one
// Orchestrator goroutine per recording, bounding stage concurrency with
// per-stage gates sized from configuration. Each Orchestrator walks the fixed
// stage order (acquire, transcode, transcribe, translate, publish), skipping
// stages that already completed, so a crash or restart simply resumes where
// the persisted stage map left off.
//
// The orchestrator is the only writer of a recording's status and stage map;
// stage executors produce artifacts and report failures but never touch
// lifecycle state. Every transition is persisted before the next stage runs.
//
// Add new lifecycle stages by extending the stage table in pipeline.go,
// adding the queue status pair, and registering an executor; this package is
// the authoritative home for that coordination logic.
package workflow
