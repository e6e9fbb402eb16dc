// Package api exposes the organization admin over HTTP.
//
// # Overview
//
// Every route under /api/v1 acts on the account of the request's session.
// The session middleware rejects requests without one, then the account's
// entity subscription is started on first use. Health, metrics and the
// OIDC login flow live outside /api/v1 and need no session.
//
// # Routes
//
// Handler groups register themselves on the versioned subrouter:
//
//   - Entities: hierarchy CRUD, move, copy, subtree and path queries, permission toggles
//   - Permissions: catalog CRUD, reset to defaults, dangling references
//   - Account: settings, bundle export/import, reset, local migration
//   - Compare: side by side diff, copy and sync between employees
//   - Templates: named permission sets applied to employees
//   - Audit: search, export and clear the permission change trail
//   - Stats: permission usage, category totals, user and department stats
//
// # Usage
//
//	server := api.NewServer(api.Config{
//		Store:    store,
//		Catalog:  permissions,
//		Settings: settingsStore,
//		Transfer: transferService,
//		Sessions: session.NewHeaderProvider(),
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Errors
//
// Component errors map to status codes in one place: validation failures
// are 400, a missing account is 401, unknown ids are 404, moves that
// would create a cycle are 409, and everything else is 500. Bodies are
// {"error": "..."}.
package api
