package auth

import "context"

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
	contextKeyLines   contextKey = "auth.lines"
)

// WithIdentity stores auth identity details in context. An empty lines
// slice grants every line.
func WithIdentity(ctx context.Context, role Role, subject string, lines []string) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	if len(lines) > 0 {
		set := make(map[string]struct{}, len(lines))
		for _, line := range lines {
			set[line] = struct{}{}
		}
		ctx = context.WithValue(ctx, contextKeyLines, set)
	}
	return ctx
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	if role, ok := ctx.Value(contextKeyRole).(Role); ok {
		return role
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if subject, ok := ctx.Value(contextKeySubject).(string); ok {
		return subject
	}
	return ""
}

// HasLineScope reports whether the caller is restricted to specific lines.
func HasLineScope(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(contextKeyLines).(map[string]struct{})
	return ok
}

// LineAllowed reports whether the caller may read a line. Requests without
// an identity or without a line scope see every line.
func LineAllowed(ctx context.Context, line string) bool {
	if ctx == nil {
		return true
	}
	set, ok := ctx.Value(contextKeyLines).(map[string]struct{})
	if !ok {
		return true
	}
	_, allowed := set[line]
	return allowed
}
