// Package app composes the escrow controller into a running application.
//
// The package wires the domain service, its storage, and the external ledger
// collaborator together and manages their lifecycle. Business logic lives in
// internal/app/services/escrow; this package only assembles it.
//
//	internal/app/
//	├── application.go   # Application struct, wiring, and lifecycle
//	├── domain/token/    # Domain models (pure data structures)
//	├── storage/         # Store interface, in-memory and Postgres backends
//	├── services/escrow/ # The mint/escrow/royalty controller
//	├── httpapi/         # HTTP handlers, audit trail
//	├── system/          # Lifecycle manager
//	└── metrics/         # Prometheus instrumentation
package app
