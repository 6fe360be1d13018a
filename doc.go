// Package authkit is a pluggable authentication and authorization toolkit
// for Go web applications. It provides password login, JWT issuance and
// refresh, email verification, password reset, OAuth account linking, and
// role based access control as composable pieces: a token codec and
// strategy, header/cookie transports, repository interfaces, and an
// orchestrating Manager that encodes the business invariants.
//
// The package is storage and framework agnostic. Persistence is consumed
// through the UserRepository, RBACRepository, and OAuthRepository
// interfaces; the repository subpackage ships Bun-backed adapters. HTTP
// wiring goes through go-router contexts so any supported framework can
// mount the route groups registered by RegisterAuthRoutes.
package authkit
