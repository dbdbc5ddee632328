package storage

import "strings"

// AnonymousSubject is the reserved subject key used when an authorization
// attempt starts without a signed-in identity.
const AnonymousSubject = "anonymous"

// SubjectKey normalizes a subject identity (user id or email) into a key
// segment: non-alphanumeric runes become '_' so that identities like
// "jo@example.com" produce stable, separator-safe keys. An empty subject
// maps to AnonymousSubject.
func SubjectKey(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return AnonymousSubject
	}
	var b strings.Builder
	b.Grow(len(subject))
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Namespace builds fully qualified keys with the shape
// "<prefix>.<subjectKey>.<field>". All persisted flow state goes through a
// Namespace so that each subject's records stay isolated.
type Namespace struct {
	prefix string
}

// NewNamespace returns a Namespace with the given prefix.
func NewNamespace(prefix string) Namespace {
	return Namespace{prefix: prefix}
}

// Key returns "<prefix>.<subjectKey>.<field>" for the given subject and field.
func (n Namespace) Key(subject, field string) string {
	return n.prefix + "." + SubjectKey(subject) + "." + field
}
