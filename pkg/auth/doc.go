// Package auth defines the principal model of the trial site and the
// verification of principal tokens.
//
// # Roles
//
// Five site-wide roles exist. ADMIN and DOCTOR are privileged and bypass
// grant resolution entirely. USER, AUDITOR and COORDINATOR are restricted
// and only see documents they were granted access to, directly or through
// the document's folder.
//
//	p := auth.Principal{ID: 7, Role: auth.RoleUser, Active: true}
//	p.IsPrivileged() // false
//
// # Tokens
//
// Logins and token issuance live in the external identity service. This
// package only verifies the HS256 tokens it issues:
//
//	tm := auth.NewTokenManager(secret, "trialsite-identity")
//	authCtx, err := tm.ValidateToken(bearer)
//	if err != nil {
//		// reject with 401
//	}
//
// The subject claim carries the user id; role and active are custom claims.
package auth
