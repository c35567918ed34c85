package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mohammed-shakir/skidata-processor/internal/clustering"
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
	"github.com/mohammed-shakir/skidata-processor/internal/elevation"
	"github.com/mohammed-shakir/skidata-processor/internal/pipeline"
)

const (
	osmSkiAreas = `{"type":"FeatureCollection","features":[
{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[10,46],[10.01,46],[10.01,46.01],[10,46]]]},
 "properties":{"type":"way","id":100,"tags":{"landuse":"winter_sports","name":"Alpha"}}},
{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[10,46],[10.01,46],[10.01,46.01],[10,46]]]},
 "properties":{"type":"way","id":100,"tags":{"landuse":"winter_sports","website":"https://alpha.example"}}}
]}`
	skimapSkiAreas = `{"type":"Feature","geometry":{"type":"Point","coordinates":[10.005,46.005]},"properties":{"id":42,"name":"Alpha Resort","status":"operating","activities":["downhill"]}}
`
	runsInput = `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[10,46],[10,46.001]]},"properties":{"type":"way","id":1,"tags":{"piste:type":"downhill","piste:difficulty":"easy"}}}
{"type":"Feature","geometry":{"type":"LineString","coordinates":[[10,46],[10,46.001]]},"properties":{"type":"way","id":2,"tags":{"piste:type":"downhill","name":"Blue"}}}
{"type":"Feature","geometry":{"type":"LineString","coordinates":[[10.2,46],[10.2,46.001]]},"properties":{"type":"way","id":3,"tags":{"highway":"track"}}}
{"type":"Feature","geometry":{"type":"LineString","coordinates":[[10.3,46],[10.3,46.002]]},"properties":{"type":"way","id":4,"tags":{"piste:type":"nordic"}}}
`
	liftsInput = `{"type":"FeatureCollection","features":[
{"type":"Feature","geometry":{"type":"LineString","coordinates":[[10,46],[10.002,46.003]]},"properties":{"type":"way","id":5,"tags":{"aerialway":"chair_lift","name":"Express"}}},
{"type":"Feature","geometry":{"type":"Point","coordinates":[10.001,46.001]},"properties":{"type":"node","id":6,"tags":{"aerialway":"pylon"}}}
]}`
	sitesInput = `{"elements":[{"type":"relation","id":10,"tags":{"type":"site","site":"piste","name":"Alpha Site"},
 "members":[{"type":"way","ref":2,"role":""}]}]}`
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func fixtures(t *testing.T) Inputs {
	t.Helper()
	dir := t.TempDir()
	return Inputs{
		OSMSkiAreas:    writeFile(t, dir, "osm_ski_areas.geojson", osmSkiAreas),
		SkimapSkiAreas: writeFile(t, dir, "skimap_ski_areas.geojson", skimapSkiAreas),
		Runs:           writeFile(t, dir, "runs.geojson", runsInput),
		Lifts:          writeFile(t, dir, "lifts.geojson", liftsInput),
		Sites:          writeFile(t, dir, "sites.json", sitesInput),
	}
}

func outputSet(dir string) clustering.Set {
	return clustering.Set{
		SkiAreas: filepath.Join(dir, "ski_areas.geojson"),
		Runs:     filepath.Join(dir, "runs.geojson"),
		Lifts:    filepath.Join(dir, "lifts.geojson"),
	}
}

func elevationEnricher(t *testing.T) *elevation.Enricher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "1500")
	}))
	t.Cleanup(srv.Close)
	return elevation.NewEnricher(elevation.NewFetcher(elevation.NewClient(srv.URL, srv.Client())), 25, nil)
}

func resultFor(t *testing.T, results []Result, category string) Result {
	t.Helper()
	for _, r := range results {
		if r.Category == category {
			return r
		}
	}
	t.Fatalf("no result for %s", category)
	return Result{}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	read     map[string]int
	written  map[string]int
	finished []Result
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{read: map[string]int{}, written: map[string]int{}}
}

func (o *recordingObserver) PipelineStarted(c string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, c)
}

func (o *recordingObserver) FeatureRead(c string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.read[c]++
}

func (o *recordingObserver) FeatureWritten(c string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.written[c]++
}

func (o *recordingObserver) PipelineFinished(r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

func TestRunProducesAllCategories(t *testing.T) {
	out := outputSet(t.TempDir())
	obs := newRecordingObserver()
	p := New(Options{
		Inputs:      fixtures(t),
		Final:       out,
		Enricher:    elevationEnricher(t),
		Concurrency: 4,
		Observer:    obs,
	})

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	sa := resultFor(t, results, CategorySkiAreas)
	if sa.In != 4 || sa.Out != 3 || sa.Dropped != 0 {
		t.Fatalf("ski areas result %+v", sa)
	}
	rr := resultFor(t, results, CategoryRuns)
	if rr.In != 4 || rr.Out != 2 || rr.Dropped != 1 {
		t.Fatalf("runs result %+v", rr)
	}
	lr := resultFor(t, results, CategoryLifts)
	if lr.In != 2 || lr.Out != 1 || lr.Dropped != 1 {
		t.Fatalf("lifts result %+v", lr)
	}

	runs, err := pipeline.Collect(context.Background(), pipeline.ReadFile[model.RunFeature](out.Runs))
	if err != nil {
		t.Fatalf("read runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs", len(runs))
	}
	merged := runs[0].Properties
	if merged.ID != "way/1" || merged.Name == nil || *merged.Name != "Blue" || merged.Difficulty == nil {
		t.Fatalf("duplicate runs not merged: %+v", merged)
	}
	if len(merged.SkiAreas) != 1 || merged.SkiAreas[0].ID != "relation/10" {
		t.Fatalf("site membership lost: %+v", merged.SkiAreas)
	}
	if len(merged.Sources) != 2 {
		t.Fatalf("sources not unioned: %+v", merged.Sources)
	}
	for _, r := range runs {
		for _, pos := range r.Geometry.Line {
			if len(pos) != 3 || pos[2] != 1500 {
				t.Fatalf("run %s vertex not enriched: %v", r.Properties.ID, pos)
			}
		}
		if r.Properties.ElevationProfile == nil || len(r.Properties.ElevationProfile.Heights) == 0 {
			t.Fatalf("run %s has no profile", r.Properties.ID)
		}
	}

	lifts, err := pipeline.Collect(context.Background(), pipeline.ReadFile[model.LiftFeature](out.Lifts))
	if err != nil {
		t.Fatalf("read lifts: %v", err)
	}
	if len(lifts) != 1 || len(lifts[0].Geometry.Line[0]) != 3 {
		t.Fatalf("unexpected lifts %+v", lifts)
	}

	areas, err := pipeline.Collect(context.Background(), pipeline.ReadFile[model.SkiAreaFeature](out.SkiAreas))
	if err != nil {
		t.Fatalf("read ski areas: %v", err)
	}
	if len(areas) != 3 {
		t.Fatalf("got %d ski areas", len(areas))
	}
	if a := areas[0].Properties; a.Name == nil || *a.Name != "Alpha" || len(a.Websites) != 1 {
		t.Fatalf("duplicate OSM ski areas not merged: %+v", a)
	}
	if !areas[2].Properties.Placeholder || areas[2].Properties.ID != "relation/10" {
		t.Fatalf("site seed missing: %+v", areas[2].Properties)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.started) != 3 || len(obs.finished) != 3 {
		t.Fatalf("observer saw %d starts, %d finishes", len(obs.started), len(obs.finished))
	}
	if obs.written[CategoryRuns] != 2 || obs.read[CategoryRuns] != 4 {
		t.Fatalf("observer counts read=%v written=%v", obs.read, obs.written)
	}
}

func TestRunIsolatesPipelineFailures(t *testing.T) {
	in := fixtures(t)
	in.Lifts = filepath.Join(t.TempDir(), "missing.geojson")
	out := outputSet(t.TempDir())

	results, err := New(Options{Inputs: in, Final: out}).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "lifts pipeline") {
		t.Fatalf("expected lifts failure, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cause should be preserved: %v", err)
	}
	if r := resultFor(t, results, CategoryRuns); r.Err != nil || r.Out != 2 {
		t.Fatalf("runs should be unaffected: %+v", r)
	}
	if _, statErr := os.Stat(out.Runs); statErr != nil {
		t.Fatalf("runs output missing: %v", statErr)
	}
	if _, statErr := os.Stat(out.Lifts); !os.IsNotExist(statErr) {
		t.Fatalf("failed pipeline must not publish output")
	}
}

func TestRunWithoutElevationLeavesGeometry2D(t *testing.T) {
	out := outputSet(t.TempDir())
	if _, err := New(Options{Inputs: fixtures(t), Final: out}).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	lifts, err := pipeline.Collect(context.Background(), pipeline.ReadFile[model.LiftFeature](out.Lifts))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(lifts[0].Geometry.Line[0]) != 2 {
		t.Fatalf("geometry should stay 2-D: %v", lifts[0].Geometry.Line[0])
	}
}

type fakeClusterer struct {
	files clustering.Files
	calls int
	err   error
}

func (f *fakeClusterer) Cluster(_ context.Context, files clustering.Files) error {
	f.calls++
	f.files = files
	return f.err
}

func TestRunWritesIntermediateFilesForClustering(t *testing.T) {
	final := outputSet(t.TempDir())
	inter := outputSet(t.TempDir())
	cl := &fakeClusterer{}

	p := New(Options{Inputs: fixtures(t), Final: final, Intermediate: inter, Clusterer: cl})
	if got := p.Outputs(); got != inter {
		t.Fatalf("outputs should be intermediate paths, got %+v", got)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if cl.calls != 1 || cl.files.Intermediate != inter || cl.files.Final != final {
		t.Fatalf("clusterer called %d times with %+v", cl.calls, cl.files)
	}
	if _, err := os.Stat(inter.Runs); err != nil {
		t.Fatalf("intermediate runs missing: %v", err)
	}
	if _, err := os.Stat(final.Runs); !os.IsNotExist(err) {
		t.Fatalf("pipelines should not write final paths when clustering follows")
	}
}

func TestRunSkipsClusteringAfterFailure(t *testing.T) {
	in := fixtures(t)
	in.Runs = filepath.Join(t.TempDir(), "missing.geojson")
	cl := &fakeClusterer{}
	_, err := New(Options{Inputs: in, Final: outputSet(t.TempDir()), Intermediate: outputSet(t.TempDir()), Clusterer: cl}).
		Run(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if cl.calls != 0 {
		t.Fatalf("clustering must not run after a pipeline failure")
	}
}

func TestRunWithoutSitesFile(t *testing.T) {
	in := fixtures(t)
	in.Sites = filepath.Join(t.TempDir(), "absent.json")
	results, err := New(Options{Inputs: in, Final: outputSet(t.TempDir())}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r := resultFor(t, results, CategorySkiAreas); r.Out != 2 {
		t.Fatalf("expected no site seeds, got %+v", r)
	}
}

type badResolver struct{ panics bool }

func (r badResolver) Resolve(context.Context, []elevation.Coordinate) ([]float64, error) {
	if r.panics {
		panic("resolver exploded")
	}
	return []float64{}, nil
}

func TestRunPassesFeaturesThroughBrokenResolver(t *testing.T) {
	for _, tc := range []struct {
		name     string
		resolver badResolver
	}{
		{"short result", badResolver{}},
		{"panic", badResolver{panics: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := outputSet(t.TempDir())
			results, err := New(Options{
				Inputs:   fixtures(t),
				Final:    out,
				Enricher: elevation.NewEnricher(tc.resolver, 25, nil),
			}).Run(context.Background())
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if r := resultFor(t, results, CategorySkiAreas); r.Out != 3 {
				t.Fatalf("ski areas result %+v", r)
			}
			if _, statErr := os.Stat(out.SkiAreas); statErr != nil {
				t.Fatalf("ski areas output missing: %v", statErr)
			}
			lifts, err := pipeline.Collect(context.Background(), pipeline.ReadFile[model.LiftFeature](out.Lifts))
			if err != nil {
				t.Fatalf("read lifts: %v", err)
			}
			if len(lifts) != 1 || len(lifts[0].Geometry.Line[0]) != 2 {
				t.Fatalf("lift should pass through unchanged: %+v", lifts)
			}
			runs, err := pipeline.Collect(context.Background(), pipeline.ReadFile[model.RunFeature](out.Runs))
			if err != nil {
				t.Fatalf("read runs: %v", err)
			}
			if len(runs) != 2 || runs[0].Properties.ElevationProfile != nil {
				t.Fatalf("runs should pass through unchanged: %+v", runs)
			}
		})
	}
}

// panickingObserver blows up while one category is being read.
type panickingObserver struct {
	*recordingObserver
	category string
}

func (o panickingObserver) FeatureRead(c string) {
	if c == o.category {
		panic("observer exploded")
	}
	o.recordingObserver.FeatureRead(c)
}

func TestRunContainsPanicToOnePipeline(t *testing.T) {
	for _, category := range []string{CategorySkiAreas, CategoryRuns} {
		t.Run(category, func(t *testing.T) {
			out := outputSet(t.TempDir())
			results, err := New(Options{
				Inputs:   fixtures(t),
				Final:    out,
				Enricher: elevationEnricher(t),
				Observer: panickingObserver{recordingObserver: newRecordingObserver(), category: category},
			}).Run(context.Background())
			if err == nil || !strings.Contains(err.Error(), category+" pipeline") {
				t.Fatalf("expected %s failure, got %v", category, err)
			}
			if r := resultFor(t, results, category); r.Err == nil || !strings.Contains(r.Err.Error(), "panic") {
				t.Fatalf("panic not reported: %+v", r)
			}
			if r := resultFor(t, results, CategoryLifts); r.Err != nil || r.Out != 1 {
				t.Fatalf("lifts should be unaffected: %+v", r)
			}
			failed := map[string]string{CategorySkiAreas: out.SkiAreas, CategoryRuns: out.Runs}[category]
			if _, statErr := os.Stat(failed); !os.IsNotExist(statErr) {
				t.Fatalf("failed pipeline must not publish output")
			}
			entries, _ := os.ReadDir(filepath.Dir(failed))
			if len(entries) != 2 {
				t.Fatalf("temp output left behind: %v", entries)
			}
		})
	}
}
