// Package app composes the savings-club backend into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── request/        # Loans, investments, contributions, withdrawals
//	│   ├── user/           # Members and administrators
//	│   ├── notification/   # In-app notifications
//	│   ├── plan/           # Savings plans and community messages
//	│   └── support/        # Support tickets and reports
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (UserStore, RequestStore, etc.)
//	│   ├── memory/         # In-memory implementation for tests and local runs
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Business logic
//	│   ├── lifecycle/      # Approve/reject transitions and admin replies
//	│   ├── notify/         # In-app and email delivery
//	│   ├── accounts/       # Registration, credentials, admin user operations
//	│   ├── requests/       # Member submissions and admin queues
//	│   ├── community/      # Plan message feeds
//	│   └── support/        # Tickets and reports
//	├── httpapi/            # HTTP routing and handlers
//	├── auth/               # Tokens, passwords, reset tokens
//	├── jobs/               # Cron-scheduled maintenance
//	├── system/             # Service lifecycle manager
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/server/
//	      │
//	      ├──► internal/app/httpapi ──► internal/middleware
//	      │
//	      └──► internal/app (composition)
//	                  │
//	                  ├──► internal/app/services ──► internal/app/storage
//	                  │
//	                  └──► internal/platform (database, migrations)
//
// # Example: Adding a New Request Kind
//
//  1. Add the kind to internal/app/domain/request
//  2. Add its table to a new migration and to the postgres request table map
//  3. Add its notice texts to the lifecycle manager
//  4. Route its submission in internal/app/httpapi
package app
