package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fablepress/backend/internal/artifact"
	"github.com/fablepress/backend/internal/book"
	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/shared/logger"
)

// fakeJobStore keeps jobs in memory with the same compare-and-set
// transition semantics as the Postgres store.
type fakeJobStore struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	pages map[string]string
	arts  map[string]*domain.Artifact
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:  make(map[string]*domain.Job),
		pages: make(map[string]string),
		arts:  make(map[string]*domain.Artifact),
	}
}

func (s *fakeJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.jobs[job.JobID] = &cp
	return nil
}

func (s *fakeJobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) TransitionStatus(_ context.Context, jobID string, from []domain.Status, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrStaleTransition
	}
	for _, f := range from {
		if job.Status == f {
			job.Status = to
			job.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.ErrStaleTransition
}

func (s *fakeJobStore) SetFailure(_ context.Context, jobID string, status domain.Status, code domain.FailureCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Status = status
	job.FailureCode = &code
	return nil
}

func (s *fakeJobStore) UpdatePhoto(_ context.Context, jobID, photoKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.PhotoKey = &photoKey
	job.FaceDetected = nil
	job.FaceCropKey = nil
	job.FailureCode = nil
	return nil
}

func (s *fakeJobStore) SetAnalysisResult(_ context.Context, jobID string, faceDetected bool, faceCropKey *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.FaceDetected = &faceDetected
	job.FaceCropKey = faceCropKey
	return nil
}

func (s *fakeJobStore) SetPageState(_ context.Context, jobID string, stage domain.Stage, pageNum int, state string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[fmt.Sprintf("%s/%s/%d", jobID, stage, pageNum)] = state
	return nil
}

func (s *fakeJobStore) UpsertArtifact(_ context.Context, a *domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := 0
	if a.PageNum != nil {
		page = *a.PageNum
	}
	cp := *a
	s.arts[fmt.Sprintf("%s/%s/%s/%d", a.JobID, a.Stage, a.Kind, page)] = &cp
	return nil
}

func (s *fakeJobStore) ArtifactsByStage(_ context.Context, jobID string, stage domain.Stage) ([]domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Artifact
	for _, a := range s.arts {
		if a.JobID == jobID && a.Stage == stage {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeJobStore) pageState(jobID string, stage domain.Stage, pageNum int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[fmt.Sprintf("%s/%s/%d", jobID, stage, pageNum)]
}

func (s *fakeJobStore) status(t *testing.T, jobID string) domain.Status {
	t.Helper()
	job, err := s.Get(context.Background(), jobID)
	require.NoError(t, err)
	return job.Status
}

// fakeDispatcher records published task messages.
type fakeDispatcher struct {
	mu   sync.Mutex
	msgs []*domain.TaskMessage
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg *domain.TaskMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.msgs = append(d.msgs, msg)
	return nil
}

func (d *fakeDispatcher) last(t *testing.T) *domain.TaskMessage {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.msgs)
	return d.msgs[len(d.msgs)-1]
}

func quietLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// storybookManifest is a 4 page template: page 1 is the hidden cover
// interior, pages 2 and 3 carry face swaps, page 4 is text only.
func storybookManifest() *book.Manifest {
	return &book.Manifest{
		Slug:           "brave-knight",
		PositivePrompt: "storybook illustration, soft colors",
		Output:         book.Output{DPI: 300, PageSizePx: 64},
		Pages: []book.Page{
			{
				PageNum:       1,
				BaseKey:       "books/brave-knight/pages/01.png",
				NeedsFaceSwap: true,
				Availability:  book.Availability{Postpay: true},
			},
			{
				PageNum:       2,
				BaseKey:       "books/brave-knight/pages/02.png",
				NeedsFaceSwap: true,
				Prompt:        "a child knight in the castle yard",
				Availability:  book.Availability{Prepay: true, Postpay: true},
				TextLayers: []book.TextLayer{
					{TextTemplate: "{name} the Brave", TemplateEngine: "format", TemplateVars: []string{"child_name"}},
				},
			},
			{
				PageNum:       3,
				BaseKey:       "books/brave-knight/pages/03.png",
				NeedsFaceSwap: true,
				Availability:  book.Availability{Prepay: true, Postpay: true},
			},
			{
				PageNum:      4,
				BaseKey:      "books/brave-knight/pages/04.png",
				Availability: book.Availability{Postpay: true},
				TextLayers: []book.TextLayer{
					{TextTemplate: "The End", TemplateEngine: "format"},
				},
			},
		},
	}
}

// seedManifest stores the fixture manifest and returns a store that loads it.
func seedManifest(t *testing.T, artifacts artifact.Store, m *book.Manifest) book.ManifestStore {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, artifacts.Put(context.Background(), artifact.ManifestKey(m.Slug), data, "application/json"))
	return book.NewCachedManifestStore(artifacts, nil, quietLogger().Logger)
}
