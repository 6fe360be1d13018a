package authkit

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidToken       = "AUTH_INVALID_TOKEN"
	TextCodeMissingToken       = "AUTH_MISSING_TOKEN"
	TextCodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	TextCodeAccessDenied       = "AUTH_ACCESS_DENIED"
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeUserExists         = "USER_ALREADY_EXISTS"
	TextCodeUserInactive       = "USER_INACTIVE"
	TextCodeUserVerified       = "USER_ALREADY_VERIFIED"
	TextCodeRoleNotFound       = "ROLE_NOT_FOUND"
	TextCodeRoleExists         = "ROLE_ALREADY_EXISTS"
	TextCodePermissionNotFound = "PERMISSION_NOT_FOUND"
	TextCodePermissionExists   = "PERMISSION_ALREADY_EXISTS"
	TextCodeRBACNotConfigured  = "RBAC_NOT_CONFIGURED"
	TextCodeOAuthNotConfigured = "OAUTH_NOT_CONFIGURED"
)

// ErrInvalidToken covers every token rejection: bad signature, disallowed
// algorithm, audience mismatch, expiry, kind mismatch, or malformed claims.
// The specific cause is carried in metadata for logs, never in the message.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingToken is returned when no credential is present in any of the
// configured transport locations. Absence is distinct from invalidity.
var ErrMissingToken = goerrors.New("missing token", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is the generic login failure. The message never
// reveals whether the identifier or the password was wrong.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccessDenied means the principal authenticated but lacks the required
// role or permissions.
var ErrAccessDenied = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(goerrors.CodeForbidden)

// ErrUserNotFound is returned for lookups that miss. During login it shares
// message and status with ErrInvalidCredentials to prevent enumeration.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUserAlreadyExists is returned on registration or email-change
// collisions, and on OAuth callbacks that would silently take over an
// existing account.
var ErrUserAlreadyExists = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(goerrors.CodeConflict)

// ErrUserInactive is returned when an operation requires an active account.
var ErrUserInactive = goerrors.New("user is inactive", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserInactive).
	WithCode(goerrors.CodeForbidden)

// ErrUserAlreadyVerified is returned when requesting or confirming
// verification for an account that is already verified.
var ErrUserAlreadyVerified = goerrors.New("user already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserVerified).
	WithCode(goerrors.CodeConflict)

var ErrRoleNotFound = goerrors.New("role not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrRoleAlreadyExists = goerrors.New("role already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeRoleExists).
	WithCode(goerrors.CodeConflict)

var ErrPermissionNotFound = goerrors.New("permission not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodePermissionNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrPermissionAlreadyExists = goerrors.New("permission already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodePermissionExists).
	WithCode(goerrors.CodeConflict)

// ErrRBACNotConfigured is a wiring error, not an authorization decision:
// an RBAC check was invoked but no RBACRepository was supplied, or the
// stored principal does not expose its grants. It must never be handled by
// the same path as ErrAccessDenied.
var ErrRBACNotConfigured = goerrors.New("rbac repository not configured", goerrors.CategoryOperation).
	WithTextCode(TextCodeRBACNotConfigured).
	WithCode(goerrors.CodeInternal)

// ErrOAuthNotConfigured is the OAuth counterpart of ErrRBACNotConfigured.
var ErrOAuthNotConfigured = goerrors.New("oauth repository not configured", goerrors.CategoryOperation).
	WithTextCode(TextCodeOAuthNotConfigured).
	WithCode(goerrors.CodeInternal)

// IsConfigurationError reports whether err is a wiring/programming error
// rather than a security decision, so middleware can fail loudly instead of
// rendering a 403.
func IsConfigurationError(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryOperation
}

// IsNotFound reports whether err represents a missing entity, either one of
// the package errors or a repository record-not-found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrUserNotFound) || goerrors.Is(err, ErrRoleNotFound) || goerrors.Is(err, ErrPermissionNotFound) {
		return true
	}
	return goerrors.IsNotFound(err)
}

// HasTextCode reports whether err, or any error it wraps, is a structured
// error carrying the given text code. Clones keep their text code, so this
// matches errors that were enriched with metadata along the way.
func HasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// isConflict reports whether err carries a uniqueness/conflict category so
// the manager can translate repository constraint violations into the named
// AlreadyExists errors.
func isConflict(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryConflict
}

// invalidToken clones ErrInvalidToken attaching the underlying cause and a
// short reason tag. Tests and logs can distinguish the causes; callers see
// one error kind.
func invalidToken(reason string, cause error) error {
	clone := ErrInvalidToken.Clone()
	if clone == nil {
		return ErrInvalidToken
	}
	clone.Source = cause
	meta := map[string]any{"reason": reason}
	if cause != nil {
		meta["cause"] = cause.Error()
	}
	return clone.WithMetadata(meta)
}
