// Package audit keeps the permission audit trail of each account.
//
// # Overview
//
// Every effective permission change on an employee produces an Entry that
// names the employee, the permission and, when a session is present, the
// acting account. Entries are stored in the gateway's audit collection.
//
// # Usage Example
//
// Wire the recorder into the hierarchy store:
//
//	trail := audit.NewStore(gw, log)
//	store := hierarchy.NewStore(gw, hierarchy.WithRecorder(audit.NewRecorder(trail, permissions, log)))
//
// Search newest first:
//
//	entries, err := trail.Search(ctx, accountID, audit.SearchFilter{
//		Term:   "admin",
//		Action: audit.ActionAdd,
//	})
//
// # Retention
//
// Cleanup removes entries older than a RetentionPolicy's MaxAge; the
// server schedules it next to the backup job.
package audit
