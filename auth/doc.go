// Package auth resolves the caller of an HTTP request into a [Principal]
// once, at the boundary. Handlers check capabilities on the Principal and
// never look at emails or raw claims.
//
// Tokens are HS256 JWTs: sub is the user ID, roles (a list or a
// space/comma separated string) maps to capabilities, and permissions may
// grant capabilities directly.
package auth
