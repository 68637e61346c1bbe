package chart

// Artifact is a rendered chart. Artifacts are shared between callers by the
// artifact cache and must not be mutated after creation.
type Artifact struct {
	Data        []byte
	ContentType string
	Fingerprint string
}

// Size returns the payload size in bytes.
func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}
