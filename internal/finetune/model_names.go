package finetune

import "sync"

// ModelNameCache memoizes the trained model name of each job id. Entries are
// written once and never replaced or evicted. Two concurrent resolutions of the
// same job may both hit the remote service; whichever inserts first wins, which
// is harmless because a job's model name never changes once assigned.
type ModelNameCache struct {
	names sync.Map
}

func NewModelNameCache() *ModelNameCache {
	return &ModelNameCache{}
}

func (c *ModelNameCache) Get(jobId string) (string, bool) {
	name, ok := c.names.Load(jobId)
	if !ok {
		return "", false
	}
	return name.(string), true
}

// Store inserts name if jobId has no entry yet and returns the value that ends
// up cached. Unlike a plain map assignment a later Store never overwrites an
// existing entry, so when two resolutions race the first writer wins. Both
// writers carry the same name for a given job, so callers observe the same
// result either way.
func (c *ModelNameCache) Store(jobId, name string) string {
	actual, _ := c.names.LoadOrStore(jobId, name)
	return actual.(string)
}

func (c *ModelNameCache) Len() int {
	n := 0
	c.names.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
