// Package cli provides the orgadmin command-line interface for account
// maintenance.
//
// # Overview
//
// The CLI opens the same gateway stack as the server, selected by the
// configuration file and ORGADMIN_* environment variables, and runs one
// operation against a single account.
//
// # Commands
//
// export: Write the account bundle to a file or stdout
//
//	orgadmin-cli export --account acme --out acme.json
//
// import: Replace the account data with a bundle ("-" reads stdin)
//
//	orgadmin-cli import --account acme acme.json
//
// seed: Populate an empty account with the default catalog and settings
//
//	orgadmin-cli seed --account acme
//
// migrate: Copy local store data into the remote gateway
//
//	orgadmin-cli migrate --account acme
//
// reset: Remove every entity and restore defaults
//
//	orgadmin-cli reset --account acme --yes
//
// tree: Print the hierarchy
//
//	orgadmin-cli tree --account acme
//
// accounts: List the accounts known to the gateway
//
//	orgadmin-cli accounts
//
// backup: Back up every account once to the configured sink
//
//	orgadmin-cli backup
//
// # Configuration
//
//	orgadmin-cli --config /etc/orgadmin.yaml export --account acme
//	ORGADMIN_GATEWAY=postgres ORGADMIN_POSTGRES_URL=... orgadmin-cli accounts
package cli
