package frames

import (
	"testing"

	"renderpull/internal/renderer"
)

func job(status renderer.Status, time float64, w, h int, files ...renderer.Artifact) renderer.Job {
	return renderer.Job{Status: status, Data: renderer.JobData{Time: time, Width: w, Height: h}, Files: files}
}

func TestMatchIsExact(t *testing.T) {
	jobs := []renderer.Job{
		job(renderer.StatusOK, 5, 640, 480),
		job(renderer.StatusOK, 5, 640, 481),
		job(renderer.StatusOK, 5, 1280, 480),
		job(renderer.StatusOK, 5.5, 640, 480),
		job(renderer.StatusOK, 6, 640, 480),
		job(renderer.StatusWorking, 5, 640, 480),
	}

	for frame := 0; frame < 8; frame++ {
		for _, res := range [][2]int{{640, 480}, {1280, 480}, {640, 481}} {
			for _, m := range Match(jobs, frame, res[0], res[1]) {
				if m.Data.Time != float64(frame) || m.Data.Width != res[0] || m.Data.Height != res[1] {
					t.Errorf("Match(%d, %dx%d) returned %+v", frame, res[0], res[1], m.Data)
				}
			}
		}
	}

	if got := len(Match(jobs, 5, 640, 480)); got != 2 {
		t.Errorf("expected 2 matches for frame 5 at 640x480, got %d", got)
	}
	if got := len(Match(nil, 1, 640, 480)); got != 0 {
		t.Errorf("expected no matches on empty job list, got %d", got)
	}
}

func TestPendingAndDone(t *testing.T) {
	png := renderer.Artifact{Hash: "h-png", Type: "image/png"}
	jpg := renderer.Artifact{Hash: "h-jpg", Type: "image/jpeg"}

	matches := []renderer.Job{
		job(renderer.StatusWorking, 1, 640, 480),
		job(renderer.StatusPending, 1, 640, 480),
		job(renderer.StatusOK, 1, 640, 480),
		job(renderer.StatusOK, 1, 640, 480, jpg),
		job(renderer.StatusOK, 1, 640, 480, jpg, png),
	}

	if got := Pending(matches); len(got) != 1 || got[0].Status != renderer.StatusWorking {
		t.Errorf("expected exactly the working job as pending, got %+v", got)
	}

	done := Done(matches, "png")
	if len(done) != 1 {
		t.Fatalf("expected 1 done job for png, got %d", len(done))
	}
	for _, d := range done {
		if _, ok := artifactHash(d, "png"); !ok {
			t.Errorf("done job without image/png artifact: %+v", d)
		}
	}

	if got := len(Done(matches, "jpeg")); got != 2 {
		t.Errorf("expected 2 done jobs for jpeg, got %d", got)
	}
}

func TestSelectSource(t *testing.T) {
	tests := []struct {
		name        string
		matches     []renderer.Job
		wantKind    SourceKind
		wantHash    string
		wantPending int
	}{
		{
			name:     "no matches renders",
			wantKind: SourceFreshRender,
		},
		{
			name: "first done artifact wins",
			matches: []renderer.Job{
				job(renderer.StatusWorking, 1, 640, 480),
				job(renderer.StatusOK, 1, 640, 480, renderer.Artifact{Hash: "a", Type: "image/jpeg"}, renderer.Artifact{Hash: "b", Type: "image/png"}),
				job(renderer.StatusOK, 1, 640, 480, renderer.Artifact{Hash: "c", Type: "image/png"}),
			},
			wantKind: SourceCached,
			wantHash: "b",
		},
		{
			name: "pending reported without done",
			matches: []renderer.Job{
				job(renderer.StatusWorking, 1, 640, 480),
				job(renderer.StatusWorking, 1, 640, 480),
				job(renderer.StatusOK, 1, 640, 480),
			},
			wantKind:    SourceFreshRender,
			wantPending: 2,
		},
		{
			name:     "queued job does not block rendering",
			matches:  []renderer.Job{job(renderer.StatusPending, 1, 640, 480)},
			wantKind: SourceFreshRender,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, pending := SelectSource(tt.matches, "png")
			if src.Kind != tt.wantKind || src.Hash != tt.wantHash || pending != tt.wantPending {
				t.Errorf("SelectSource() = %+v, %d; want kind=%s hash=%q pending=%d",
					src, pending, tt.wantKind, tt.wantHash, tt.wantPending)
			}
		})
	}
}
