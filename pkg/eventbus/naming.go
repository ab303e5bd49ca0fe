package eventbus

import "strings"

const qualifiedNameSeparator = "."

// NameResolver maps raw event identifiers to canonical subscription keys.
type NameResolver struct {
	prefix      string
	suffix      string
	stripPrefix bool
	stripSuffix bool
	appName     string
}

func NewNameResolver(opts ...Option) NameResolver {
	return newConfig(opts...).resolver()
}

// Normalize strips the configured prefix and suffix until neither is
// present, so Normalize(Normalize(x)) == Normalize(x).
func (r NameResolver) Normalize(raw string) string {
	name := raw
	for {
		next := name
		if r.stripPrefix && r.prefix != "" {
			next = strings.TrimPrefix(next, r.prefix)
		}
		if r.stripSuffix && r.suffix != "" {
			next = strings.TrimSuffix(next, r.suffix)
		}
		if next == name {
			return name
		}
		name = next
	}
}

// QualifiedSubscriberName is the broker-side subscription name for raw.
func (r NameResolver) QualifiedSubscriberName(raw string) string {
	name := r.Normalize(raw)
	if r.appName == "" {
		return name
	}
	return r.appName + qualifiedNameSeparator + name
}

func (r NameResolver) SubscriberAppName() string {
	return r.appName
}
