// Package auth answers HTTP authentication challenges raised during the
// WebSocket opening handshake.
//
// A 401 response carries one or more WWW-Authenticate challenges.
// ParseChallenges extracts them, Select picks the strongest supported one
// (Digest before Basic) and an Authorizer turns it plus a set of
// Credentials into an Authorization header value.
//
// Credentials come from a Store. URLStore reads the user info of the target
// URL, StaticStore matches configured entries by host glob and realm, and
// Chain consults several stores in order.
package auth
