package ports

import (
	"context"
	"strings"
)

// Reference addresses a node in a hierarchical data store.
type Reference struct {
	Location string
	Segments []string
}

// Child returns a reference one level below r.
func (r Reference) Child(segment string) Reference {
	segs := make([]string, 0, len(r.Segments)+1)
	segs = append(segs, r.Segments...)
	segs = append(segs, segment)
	return Reference{Location: r.Location, Segments: segs}
}

// Key joins the segments with "/".
func (r Reference) Key() string {
	return strings.Join(r.Segments, "/")
}

func (r Reference) String() string {
	return strings.TrimSuffix(r.Location, "/") + "/" + r.Key()
}

// DataStore is a hierarchical key/value tree.
type DataStore interface {
	// SetValue replaces the node at ref.
	SetValue(ctx context.Context, ref Reference, value map[string]any) error
	// GetData returns the node at ref, or nil when nothing is stored there.
	GetData(ctx context.Context, ref Reference) (any, error)
	Ping(ctx context.Context) error
	Close() error
}

type idTokenKey struct{}

// ContextWithIDToken attaches the identity token of the current session.
func ContextWithIDToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, idTokenKey{}, token)
}

// IDTokenFromContext returns the identity token attached to ctx, if any.
func IDTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(idTokenKey{}).(string)
	return token, ok && token != ""
}
