package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-vision-service/internal/adapter/store"
	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/observability"
	"github.com/couchcryptid/storm-vision-service/internal/pipeline"
	"github.com/couchcryptid/storm-vision-service/internal/render"
)

const hurricaneJSON = "```json\n" + `{
	"explanation": "A mature hurricane is approaching the Florida Gulf coast.",
	"locationName": "Tampa, Florida",
	"temperature": 29,
	"windSpeed": 185,
	"windDirection": "NW",
	"center": {"lat": 27.95, "lon": -82.46},
	"stormTrack": [
		{"hour": 0, "intensity": "Cat 3", "x": 20, "y": 80},
		{"hour": 12, "intensity": "Cat 4", "x": 40, "y": 60},
		{"hour": 24, "intensity": "Cat 4", "x": 60, "y": 40}
	],
	"stormSurge": [{"level": "high", "height": 3.5, "points": [{"x": 10, "y": 10}, {"x": 30, "y": 10}, {"x": 20, "y": 30}]}],
	"windField": [{"x": 50, "y": 50, "speed": 120, "direction": 45}]
}` + "\n```"

const unlocatedJSON = `{"explanation": "Clear skies over open ocean."}`

// --- mocks ---

type mockAnalyzer struct {
	mu         sync.Mutex
	responses  [][]byte
	calls      int
	err        error
	enhanceErr error
}

func (m *mockAnalyzer) Analyze(_ context.Context, _ domain.SourceImage) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r := m.responses[m.calls%len(m.responses)]
	m.calls++
	return r, nil
}

func (m *mockAnalyzer) Enhance(_ context.Context, _ domain.WeatherAnalysis) (domain.SourceImage, error) {
	if m.enhanceErr != nil {
		return domain.SourceImage{}, m.enhanceErr
	}
	return domain.SourceImage{Data: pngBytes(64, 32), MIMEType: "image/png", FileName: "enhanced.png"}, nil
}

type mockPublisher struct {
	published []domain.WeatherAnalysis
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, a domain.WeatherAnalysis) error {
	m.published = append(m.published, a)
	return m.err
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }
func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

// gatedStore holds the first Put until release is closed.
type gatedStore struct {
	domain.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{Store: store.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) Put(ctx context.Context, key string, blob []byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Store.Put(ctx, key, blob)
}

type mockConditions struct {
	release    chan struct{} // when non-nil, fetches block until closed
	liveErr    error
	forecastOK atomic.Int64
}

func (m *mockConditions) wait(ctx context.Context) error {
	if m.release == nil {
		return nil
	}
	select {
	case <-m.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockConditions) Live(ctx context.Context, lat, _ float64) (domain.LiveWeather, error) {
	if err := m.wait(ctx); err != nil {
		return domain.LiveWeather{}, err
	}
	if m.liveErr != nil {
		return domain.LiveWeather{}, m.liveErr
	}
	return domain.LiveWeather{Temperature: lat}, nil
}

func (m *mockConditions) Forecast(ctx context.Context, _, _ float64, days int) ([]domain.ForecastDay, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.forecastOK.Add(1)
	return make([]domain.ForecastDay, days), nil
}

type mockMaps struct {
	req domain.MapRequest
	err error
}

func (m *mockMaps) StaticMap(_ context.Context, a domain.WeatherAnalysis, req domain.MapRequest) ([]byte, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	if a.Center == nil {
		return nil, domain.ErrNoCenter
	}
	return []byte("png-bytes"), nil
}

// --- helpers ---

func pngBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 60, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func upload(name string) domain.SourceImage {
	return domain.SourceImage{Data: append(pngBytes(80, 40), name...), MIMEType: "image/png", FileName: name}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2024, time.September, 26, 15, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })
	return fc
}

func newService(cfg pipeline.Config) (*pipeline.Service, *observability.Metrics) {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	m := observability.NewMetricsForTesting()
	return pipeline.New(cfg, discardLogger(), m), m
}

// --- analysis ---

func TestService_Analyze(t *testing.T) {
	freezeClock(t)
	st := store.NewMemory()
	pub := &mockPublisher{}
	svc, m := newService(pipeline.Config{
		Analyzer:  &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}},
		Store:     st,
		Publisher: pub,
	})
	require.Error(t, svc.CheckReadiness(context.Background()))

	snap, err := svc.Analyze(context.Background(), upload("storm.png"), false)
	require.NoError(t, err)

	a := snap.Analysis
	assert.Regexp(t, `^wa-[0-9a-f]{16}$`, a.ID)
	assert.Equal(t, time.Date(2024, time.September, 26, 15, 0, 0, 0, time.UTC), a.CreatedAt)
	assert.Equal(t, "storm.png", a.FileName)
	assert.Equal(t, "Tampa, Florida", a.LocationName)
	assert.Len(t, a.StormTrack, 3)
	assert.Nil(t, snap.Enhanced)

	require.NoError(t, svc.CheckReadiness(context.Background()))
	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, a.ID, latest.Analysis.ID)

	persisted, err := domain.LoadSnapshot(context.Background(), st)
	require.NoError(t, err)
	if diff := cmp.Diff(snap, persisted); diff != "" {
		t.Errorf("persisted snapshot mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, pub.published, 1)
	assert.Equal(t, a.ID, pub.published[0].ID)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Analyses.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SnapshotLoaded), 0)
}

func TestService_Analyze_AIError(t *testing.T) {
	svc, m := newService(pipeline.Config{Analyzer: &mockAnalyzer{err: errors.New("rate limited")}})

	_, err := svc.Analyze(context.Background(), upload("a.png"), false)
	require.ErrorIs(t, err, pipeline.ErrUpstream)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = svc.Latest()
	assert.ErrorIs(t, err, domain.ErrNoAnalysis)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Analyses.WithLabelValues("ai_error")), 0)
}

func TestService_Analyze_RejectsBadResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "not json", raw: "I cannot analyze this image."},
		{name: "track out of order", raw: `{"stormTrack":[{"hour":12,"x":1,"y":1},{"hour":6,"x":2,"y":2}]}`, wantErr: domain.ErrTrackOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService(pipeline.Config{Analyzer: &mockAnalyzer{responses: [][]byte{[]byte(tt.raw)}}})

			_, err := svc.Analyze(context.Background(), upload("a.png"), false)
			require.ErrorIs(t, err, pipeline.ErrUpstream)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Error(t, svc.CheckReadiness(context.Background()))
			assert.InDelta(t, 1, testutil.ToFloat64(m.Analyses.WithLabelValues("parse_error")), 0)
		})
	}
}

func TestService_Analyze_Enhance(t *testing.T) {
	svc, _ := newService(pipeline.Config{Analyzer: &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}}})

	snap, err := svc.Analyze(context.Background(), upload("a.png"), true)
	require.NoError(t, err)
	require.NotNil(t, snap.Enhanced)
	assert.Equal(t, "enhanced.png", snap.Enhanced.FileName)
}

func TestService_Analyze_EnhanceFailureKeepsAnalysis(t *testing.T) {
	svc, _ := newService(pipeline.Config{Analyzer: &mockAnalyzer{
		responses:  [][]byte{[]byte(hurricaneJSON)},
		enhanceErr: errors.New("content policy"),
	}})

	snap, err := svc.Analyze(context.Background(), upload("a.png"), true)
	require.NoError(t, err)
	assert.Nil(t, snap.Enhanced)
	assert.NotEmpty(t, snap.Analysis.ID)
}

func TestService_Analyze_SideEffectFailuresAreNotFatal(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	svc, _ := newService(pipeline.Config{
		Analyzer:  &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}},
		Store:     failingStore{},
		Publisher: pub,
	})

	_, err := svc.Analyze(context.Background(), upload("a.png"), false)
	require.NoError(t, err)
	assert.NoError(t, svc.CheckReadiness(context.Background()))
	assert.Len(t, pub.published, 1)
}

func TestService_LoadLatest(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	svc, m := newService(pipeline.Config{Analyzer: &mockAnalyzer{}, Store: st})
	require.NoError(t, svc.LoadLatest(ctx), "empty store is not an error")
	assert.Error(t, svc.CheckReadiness(ctx))

	saved := domain.Snapshot{
		Analysis: domain.WeatherAnalysis{ID: "wa-saved", Explanation: "Saved earlier."},
		Image:    domain.SourceImage{Data: []byte{1, 2, 3}, MIMEType: "image/jpeg"},
	}
	require.NoError(t, domain.SaveSnapshot(ctx, st, saved))

	require.NoError(t, svc.LoadLatest(ctx))
	require.NoError(t, svc.CheckReadiness(ctx))
	got, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SnapshotLoaded), 0)
}

// --- conditions ---

func TestService_Analyze_PersistsNewestOfOverlappingAnalyses(t *testing.T) {
	gs := newGatedStore()
	svc, _ := newService(pipeline.Config{
		Analyzer: &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}},
		Store:    gs,
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	var first domain.Snapshot
	wg.Add(1)
	go func() {
		defer wg.Done()
		snap, err := svc.Analyze(ctx, upload("first.png"), false)
		assert.NoError(t, err)
		first = snap
	}()
	<-gs.entered // first analysis is mid-save

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Analyze(ctx, upload("second.png"), false)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool {
		latest, err := svc.Latest()
		return err == nil && latest.Analysis.FileName == "second.png"
	}, 2*time.Second, 5*time.Millisecond)

	close(gs.release)
	wg.Wait()

	persisted, err := domain.LoadSnapshot(ctx, gs.Store)
	require.NoError(t, err)
	assert.Equal(t, "second.png", persisted.Analysis.FileName)
	assert.NotEqual(t, first.Analysis.ID, persisted.Analysis.ID)
}

func TestService_Conditions(t *testing.T) {
	freezeClock(t)
	cond := &mockConditions{}
	svc, m := newService(pipeline.Config{
		Analyzer:   &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}},
		Conditions: cond,
	})

	snap, err := svc.Analyze(context.Background(), upload("a.png"), false)
	require.NoError(t, err)
	svc.Wait()

	c, err := svc.Conditions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Analysis.ID, c.AnalysisID)
	require.NotNil(t, c.Live)
	assert.InDelta(t, 27.95, c.Live.Temperature, 1e-9)
	assert.Len(t, c.Forecast, 5)
	assert.Empty(t, c.LiveError)
	assert.Empty(t, c.ForecastError)
	assert.Equal(t, int64(1), cond.forecastOK.Load(), "cached after the background refresh")
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConditionsRequests.WithLabelValues("live", "success")), 0)
}

func TestService_Conditions_IndependentErrors(t *testing.T) {
	svc, m := newService(pipeline.Config{
		Analyzer:   &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}},
		Conditions: &mockConditions{liveErr: errors.New("open-meteo API error: status 503")},
	})
	_, err := svc.Analyze(context.Background(), upload("a.png"), false)
	require.NoError(t, err)
	svc.Wait()

	c, err := svc.Conditions(context.Background())
	require.NoError(t, err)
	assert.Nil(t, c.Live)
	assert.Contains(t, c.LiveError, "status 503")
	assert.Len(t, c.Forecast, 5, "forecast unaffected by the live failure")
	assert.Empty(t, c.ForecastError)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConditionsRequests.WithLabelValues("live", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConditionsRequests.WithLabelValues("forecast", "success")), 0)
}

func TestService_Conditions_DiscardsStaleResults(t *testing.T) {
	cond := &mockConditions{release: make(chan struct{})}
	svc, m := newService(pipeline.Config{
		Analyzer:   &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON), []byte(unlocatedJSON)}},
		Conditions: cond,
	})

	// The first analysis starts a background refresh that blocks.
	_, err := svc.Analyze(context.Background(), upload("first.png"), false)
	require.NoError(t, err)

	// A second analysis replaces it before the fetch completes.
	second, err := svc.Analyze(context.Background(), upload("second.png"), false)
	require.NoError(t, err)

	close(cond.release)
	svc.Wait()

	assert.InDelta(t, 1, testutil.ToFloat64(m.ConditionsRequests.WithLabelValues("live", "stale")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConditionsRequests.WithLabelValues("forecast", "stale")), 0)

	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, second.Analysis.ID, latest.Analysis.ID)

	_, err = svc.Conditions(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoLocation, "stale results never attach to the new analysis")
}

func TestService_Conditions_Unavailable(t *testing.T) {
	svc, _ := newService(pipeline.Config{Analyzer: &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}}})
	_, err := svc.Conditions(context.Background())
	require.ErrorIs(t, err, domain.ErrNoAnalysis)

	_, err = svc.Analyze(context.Background(), upload("a.png"), false)
	require.NoError(t, err)
	_, err = svc.Conditions(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrDisabled)
}

// --- track and renders ---

func TestService_Track(t *testing.T) {
	svc, _ := newService(pipeline.Config{Analyzer: &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON), []byte(unlocatedJSON)}}})

	_, err := svc.Track(0)
	require.ErrorIs(t, err, domain.ErrNoAnalysis)

	_, err = svc.Analyze(context.Background(), upload("a.png"), false)
	require.NoError(t, err)

	ts, err := svc.Track(6)
	require.NoError(t, err)
	assert.InDelta(t, 30, ts.Head.Position.X, 1e-9)
	assert.InDelta(t, 70, ts.Head.Position.Y, 1e-9)
	assert.True(t, ts.Head.Interpolated)
	assert.InDelta(t, 0, ts.FirstHour, 0)
	assert.InDelta(t, 24, ts.LastHour, 0)

	_, err = svc.Analyze(context.Background(), upload("b.png"), false)
	require.NoError(t, err)
	_, err = svc.Track(6)
	assert.ErrorIs(t, err, pipeline.ErrNoTrack)
}

func TestService_Renders(t *testing.T) {
	svc, m := newService(pipeline.Config{Analyzer: &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}}})

	var buf bytes.Buffer
	require.ErrorIs(t, svc.RenderSVG(&buf, renderOpts(100, 100)), domain.ErrNoAnalysis)

	_, err := svc.Analyze(context.Background(), upload("a.png"), false)
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, svc.RenderSVG(&buf, renderOpts(200, 100)))
	assert.Contains(t, buf.String(), `width="200" height="100"`)

	buf.Reset()
	require.NoError(t, svc.RenderSVG(&buf, renderOpts(0, 0)))
	assert.Contains(t, buf.String(), `width="80" height="40"`)

	buf.Reset()
	require.NoError(t, svc.RenderOverlayPNG(&buf, renderOpts(0, 0), true))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 80, 40), img.Bounds(), "canvas takes the source image size")

	buf.Reset()
	require.NoError(t, svc.RenderOverlayPNG(&buf, renderOpts(0, 0), false))
	img, err = png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 80, 40), img.Bounds(), "unset size defaults to the source image")

	buf.Reset()
	require.NoError(t, svc.RenderWindPNG(&buf, 120, 60))
	img, err = png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())

	buf.Reset()
	require.NoError(t, svc.ExportCSV(&buf))
	assert.Contains(t, buf.String(), "timestamp,location,temperature")
	assert.Contains(t, buf.String(), `"Tampa, Florida"`)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Renders.WithLabelValues("svg", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Renders.WithLabelValues("csv", "success")), 0)
}

func TestService_Renders_BoundOversizedSourceImage(t *testing.T) {
	svc, _ := newService(pipeline.Config{Analyzer: &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}}})

	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, image.NewGray(image.Rect(0, 0, 9000, 90))))
	_, err := svc.Analyze(context.Background(), domain.SourceImage{Data: src.Bytes(), MIMEType: "image/png"}, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.RenderSVG(&buf, renderOpts(0, 0)))
	assert.Contains(t, buf.String(), `width="4096" height="41"`)

	buf.Reset()
	require.NoError(t, svc.RenderWindPNG(&buf, 0, 0))
	cfg, err := png.DecodeConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, render.MaxDimension, cfg.Width)
	assert.Equal(t, 41, cfg.Height)

	err = svc.RenderOverlayPNG(io.Discard, renderOpts(0, 0), true)
	require.ErrorIs(t, err, render.ErrImageTooLarge)
}

func TestService_RenderOverlayPNG_InvalidSize(t *testing.T) {
	svc, m := newService(pipeline.Config{Analyzer: &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON)}}})
	_, err := svc.Analyze(context.Background(), upload("a.png"), false)
	require.NoError(t, err)

	err = svc.RenderOverlayPNG(io.Discard, renderOpts(0, 50), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render png")
	assert.InDelta(t, 1, testutil.ToFloat64(m.Renders.WithLabelValues("png", "error")), 0)
}

func TestService_RenderMap(t *testing.T) {
	ctx := context.Background()
	analyzer := &mockAnalyzer{responses: [][]byte{[]byte(hurricaneJSON), []byte(unlocatedJSON)}}

	disabled, _ := newService(pipeline.Config{Analyzer: analyzer})
	_, err := disabled.RenderMap(ctx, domain.MapRequest{})
	require.ErrorIs(t, err, pipeline.ErrDisabled)

	maps := &mockMaps{}
	svc, _ := newService(pipeline.Config{Analyzer: analyzer, Maps: maps, MapStyle: "mapbox/satellite-streets-v12"})
	_, err = svc.Analyze(ctx, upload("a.png"), false)
	require.NoError(t, err)

	out, err := svc.RenderMap(ctx, domain.MapRequest{Width: 400, Height: 300})
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), out)
	assert.Equal(t, "mapbox/satellite-streets-v12", maps.req.Style, "default style applied")

	_, err = svc.RenderMap(ctx, domain.MapRequest{Style: "mapbox/dark-v11"})
	require.NoError(t, err)
	assert.Equal(t, "mapbox/dark-v11", maps.req.Style)

	maps.err = errors.New("mapbox API error: status 401")
	_, err = svc.RenderMap(ctx, domain.MapRequest{})
	require.ErrorIs(t, err, pipeline.ErrUpstream)

	maps.err = nil
	_, err = svc.Analyze(ctx, upload("b.png"), false)
	require.NoError(t, err)
	_, err = svc.RenderMap(ctx, domain.MapRequest{})
	require.ErrorIs(t, err, domain.ErrNoCenter)
	assert.NotErrorIs(t, err, pipeline.ErrUpstream)
}
