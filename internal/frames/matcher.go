package frames

import "renderpull/internal/renderer"

// Match returns the jobs rendering exactly this frame at this resolution.
func Match(jobs []renderer.Job, frame, width, height int) []renderer.Job {
	var out []renderer.Job
	for _, j := range jobs {
		if j.Data.Time == float64(frame) && j.Data.Width == width && j.Data.Height == height {
			out = append(out, j)
		}
	}
	return out
}

// Pending returns the matches still being rendered.
func Pending(matches []renderer.Job) []renderer.Job {
	var out []renderer.Job
	for _, j := range matches {
		if j.Status == renderer.StatusWorking {
			out = append(out, j)
		}
	}
	return out
}

// Done returns the finished matches holding an image/<format> artifact.
func Done(matches []renderer.Job, format string) []renderer.Job {
	var out []renderer.Job
	for _, j := range matches {
		if j.Status != renderer.StatusOK {
			continue
		}
		if _, ok := artifactHash(j, format); ok {
			out = append(out, j)
		}
	}
	return out
}

func artifactHash(j renderer.Job, format string) (string, bool) {
	want := "image/" + format
	for _, f := range j.Files {
		if f.Type == want {
			return f.Hash, true
		}
	}
	return "", false
}

// SourceKind tells where the bytes of a frame come from.
type SourceKind int

const (
	// SourceFreshRender triggers a render and streams its output.
	SourceFreshRender SourceKind = iota
	// SourceCached downloads the artifact of a finished job.
	SourceCached
)

func (k SourceKind) String() string {
	if k == SourceCached {
		return "cached"
	}
	return "fresh-render"
}

// ArtifactSource is selected once per resolution of a frame.
// Hash is only set for SourceCached.
type ArtifactSource struct {
	Kind SourceKind
	Hash string
}

// SelectSource picks the first qualifying artifact of the first done match.
// With no done match it returns SourceFreshRender together with the number of
// pending matches; a caller seeing pending > 0 should wait instead of rendering.
func SelectSource(matches []renderer.Job, format string) (ArtifactSource, int) {
	for _, j := range Done(matches, format) {
		if hash, ok := artifactHash(j, format); ok {
			return ArtifactSource{Kind: SourceCached, Hash: hash}, 0
		}
	}
	return ArtifactSource{Kind: SourceFreshRender}, len(Pending(matches))
}
