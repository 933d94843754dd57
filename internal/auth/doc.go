// Package auth provides caller identity and sign-in for Flora Core.
//
// Every request that touches sensor data carries an Identity in its
// context. The identity comes from an HS256 access token whose subject is
// the owner's user ID; IdentityFromContext and UserIDFromContext are the
// only way handlers learn who is calling.
//
// Sign-in uses local accounts:
//   - Argon2id password hashing in PHC string format
//   - Short-lived JWT access tokens validated without a database hit
//   - Rotating refresh tokens grouped into families, where replaying a
//     consumed token revokes the whole family
package auth
