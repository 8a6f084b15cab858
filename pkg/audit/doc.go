// Package audit records security-relevant events: grants, revocations,
// denied document access, structural changes and signature workflow steps.
//
// FileLogger appends JSON lines and rotates by size. SlogLogger mirrors
// events into the service log. MultiLogger fans out to both, and
// MemoryLogger captures events for tests.
package audit
