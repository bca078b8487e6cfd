// Package mocks provides centralized mock implementations for testing.
//
// It contains two flavors of test double:
//
//   - In-memory stores (MemCardStore, MemWorkflowStore, MemBlobStore,
//     MemTaskStore) that implement the real store semantics, including
//     revision guards and merge behavior, so pipeline and service tests
//     exercise the same edge cases the database enforces.
//   - Function-field mocks (MockMetadataGenerator, MockEventEmitter,
//     MockCardService, MockJWTService) whose behavior each test overrides
//     per case.
//
// Instead of defining inline mocks in individual test files, these
// standardized implementations are reused across packages.
package mocks
