// Package api provides the HTTP REST API and WebSocket stream for Flora.
//
// It exposes account sign-in, device registration, paginated sensor
// reading queries, the plant and weather pass-throughs, and a live
// reading stream to the mobile app.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Every route under /api/v1 except health, metrics, login, register and
// logout requires a bearer access token. Errors are written as
// {"status", "code", "message"}.
package api
