// Package api is the HTTP surface: the chat producer endpoint, usage
// reporting, and the admin endpoints for queue stats, the dead letter queue
// and plan sync from billing.
//
// Every route runs behind bearer authentication and a capability check.
// Errors from handlers are mapped to status codes in one place,
// [Server.HandleError]; infrastructure failures surface as 503 with a
// generic message and never leak internal detail.
package api
