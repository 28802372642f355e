// Package auth provides the local identity provider and the session
// resolver.
//
// Identities are email/password accounts stored alongside the domain
// data: credential records live under system/accounts and an email
// index under system/accountIndex, so the profile documents under
// users/{id}/profile never carry password material. Session tokens are
// HS256 JWTs.
//
// The Resolver owns the sign-in side: it reads the profile once,
// reconciles the configured master admin (forcing role admin and
// verified true while preserving createdAt, and marking the account
// under system/admins), then follows the profile document and pushes a
// fresh Session on every change. Role drift on the master admin is
// surfaced through ReloadCh instead of being silently corrected
// mid-session.
package auth
