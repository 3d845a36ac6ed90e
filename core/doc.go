// Package core holds the connector domain: tenant credential sets, OAuth state,
// external accounts and synced content, plus the service that links them.
// Storage, provider and transport adapters depend on this package; core never
// imports them.
package core
