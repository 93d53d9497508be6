// Package mocks provides test doubles for ports interfaces.
//
// The mocks are simple, thread-safe, in-memory implementations suitable for
// unit testing. Each mock provides:
//
//   - Default behavior that mirrors the Postgres store's contract
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for inspecting state directly
//   - Reset methods for test isolation
//
// # Usage Example
//
//	func TestMerge(t *testing.T) {
//		store := mocks.NewStore()
//		m := merge.New(store, domain.DefaultTuning(), nil)
//		// ... test merger behavior
//	}
//
// # Available Mocks
//
//   - Store: implements ports.Store
package mocks
