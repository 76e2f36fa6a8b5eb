// Package flight serializes "ensure the server is running" style work.
//
// Concurrent callers for the same key share one in-flight execution instead
// of starting duplicates, which is what keeps two simultaneous launch
// requests from spawning two competing server processes on two ports.
package flight

import "golang.org/x/sync/singleflight"

// Group deduplicates concurrent calls by key.
type Group struct {
	sf singleflight.Group
}

// Do executes fn for key, making sure only one execution is in flight for a
// given key at a time. Concurrent callers receive the result of the single
// execution. Callers arriving after fn completes trigger a fresh execution.
func (g *Group) Do(key string, fn func() (any, error)) (any, error) {
	v, err, _ := g.sf.Do(key, fn)
	return v, err
}

// Forget drops any recorded in-flight state for key so the next Do call runs
// fn again even if an earlier execution is still completing.
func (g *Group) Forget(key string) {
	g.sf.Forget(key)
}
