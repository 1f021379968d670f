// Package services implements the driving port interfaces.
// Services contain the core retrieval logic (sync, hybrid search,
// citations) and orchestrate calls to driven ports (adapters).
//
// Services depend only on ports, never on concrete adapters.
package services
