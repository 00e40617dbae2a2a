package tilecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/mvt"
)

func testTileBytes() []byte {
	return mvt.EncodeTile(&mvt.Layer{
		Name: "building",
		Features: []*mvt.Feature{{
			GeomType:   mvt.GeomPolygon,
			Geometry:   []mvt.Ring{{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}},
			Properties: mvt.Properties{"height": mvt.IntValue(30)},
		}},
	})
}

var testSource = &Source{Name: "test", BaseURL: "http://tiles.test", Format: "mvt", AccessToken: "tok"}

func newTestFetcher(tr Transport, opts ...FetcherOption) *Fetcher {
	opts = append([]FetcherOption{WithLogger(zap.NewNop())}, opts...)
	return NewFetcher(testSource, tr, opts...)
}

func TestFetchTileSharesInFlightRequest(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	tr := TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return testTileBytes(), nil
	})
	f := newTestFetcher(tr)
	addr := geo.NewTileAddress(15, 1, 1)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tile, err := f.FetchTile(context.Background(), addr)
			if err == nil && tile.Empty() {
				err = errors.New("empty tile")
			}
			errs <- err
		}()
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("FetchTile() error = %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("network calls = %d, want 1", got)
	}
}

func TestFetchTileCachesSuccessNotFailure(t *testing.T) {
	var calls atomic.Int32
	tr := TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, &StatusError{URL: url, Code: 503}
		}
		return testTileBytes(), nil
	})
	f := newTestFetcher(tr)
	addr := geo.NewTileAddress(15, 1, 1)
	ctx := context.Background()

	tile, err := f.FetchTile(ctx, addr)
	if err == nil {
		t.Fatal("first FetchTile() should fail")
	}
	if !IsStatus(err, 503) {
		t.Errorf("error = %v, want status 503", err)
	}
	if tile == nil || !tile.Empty() {
		t.Errorf("failed fetch should return an empty tile")
	}
	if f.Store().Len() != 0 {
		t.Errorf("store len = %d, failure must not be cached", f.Store().Len())
	}

	if _, err := f.FetchTile(ctx, addr); err != nil {
		t.Fatalf("second FetchTile() error = %v", err)
	}
	tile, err = f.FetchTile(ctx, addr)
	if err != nil {
		t.Fatalf("third FetchTile() error = %v", err)
	}
	if _, ok := tile.Layers["building"]; !ok {
		t.Errorf("layers = %v, want building", tile.LayerNames())
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("network calls = %d, want 2", got)
	}
	st := f.Stats()
	if st.Hits != 1 || st.Failures != 1 || st.NetworkCalls != 2 {
		t.Errorf("stats = %+v, want 1 hit, 1 failure, 2 network calls", st)
	}
}

func TestFetchTileBuildsURL(t *testing.T) {
	var got string
	tr := TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		got = url
		return testTileBytes(), nil
	})
	f := newTestFetcher(tr)
	if _, err := f.FetchTile(context.Background(), geo.NewTileAddress(15, 16371, 10896)); err != nil {
		t.Fatal(err)
	}
	want := "http://tiles.test/15/16371/10896.mvt?access_token=tok"
	if got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}

func TestFetchTileRejectsInvalidAddress(t *testing.T) {
	tr := TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		t.Error("transport must not be called")
		return nil, nil
	})
	f := newTestFetcher(tr)
	tile, err := f.FetchTile(context.Background(), geo.NewTileAddress(2, 4, 0))
	if err == nil {
		t.Error("FetchTile() should reject x >= 2^z")
	}
	if !tile.Empty() {
		t.Error("invalid address should return an empty tile")
	}
}

func TestFetchTileEvicts(t *testing.T) {
	tr := TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		return testTileBytes(), nil
	})
	f := newTestFetcher(tr, WithStore(NewFIFOStore(4, 2)))
	ctx := context.Background()

	for x := uint32(0); x < 5; x++ {
		if _, err := f.FetchTile(ctx, geo.NewTileAddress(10, x, 0)); err != nil {
			t.Fatal(err)
		}
		if f.Store().Len() > 4 {
			t.Fatalf("store len = %d exceeds capacity", f.Store().Len())
		}
	}
	if got := f.Stats().Evictions; got != 2 {
		t.Errorf("evictions = %d, want 2", got)
	}
	if _, ok := f.Store().Get(geo.NewTileAddress(10, 0, 0)); ok {
		t.Error("oldest tile should have been evicted")
	}
}

func TestFetchTileUsesBlobStore(t *testing.T) {
	blobs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	tr := TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		calls.Add(1)
		return testTileBytes(), nil
	})
	addr := geo.NewTileAddress(14, 100, 200)

	first := newTestFetcher(tr, WithBlobStore(blobs))
	if _, err := first.FetchTile(context.Background(), addr); err != nil {
		t.Fatal(err)
	}

	// a fresh fetcher has an empty memory store but shares the blob tier
	second := newTestFetcher(tr, WithBlobStore(blobs))
	tile, err := second.FetchTile(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if tile.FeatureCount() != 1 {
		t.Errorf("features = %d, want 1", tile.FeatureCount())
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("network calls = %d, want 1", got)
	}
	if got := second.Stats().BlobHits; got != 1 {
		t.Errorf("blob hits = %d, want 1", got)
	}
}

func TestTilesInRadiusIncludesHome(t *testing.T) {
	center := geo.NewPoint(51.5074, -0.1278)
	tiles := TilesInRadius(center, 1, 14, 15)
	home := geo.LatLonToTile(center.Lat, center.Lon, 14)

	found := false
	for _, a := range tiles {
		if a == home {
			found = true
		}
	}
	if !found {
		t.Errorf("tiles %v do not include home tile %s", tiles, home)
	}
}

func TestFetchTileCancelledCallerDoesNotFailWaiters(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	tr := TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return testTileBytes(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	f := newTestFetcher(tr)
	addr := geo.NewTileAddress(15, 3, 3)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.FetchTile(ctx, addr)
		first <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		tile, err := f.FetchTile(context.Background(), addr)
		if err == nil && tile.Empty() {
			err = errors.New("empty tile")
		}
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled FetchTile() error = %v, want context.Canceled", err)
	}
	close(release)
	if err := <-second; err != nil {
		t.Errorf("waiting FetchTile() error = %v, want nil", err)
	}
	if f.Store().Len() != 1 {
		t.Errorf("store len = %d, want the shared load cached", f.Store().Len())
	}
}

func TestFetchTileUndecodableNotCached(t *testing.T) {
	var calls atomic.Int32
	tr := TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		calls.Add(1)
		return []byte{0x1a}, nil
	})
	f := newTestFetcher(tr)
	addr := geo.NewTileAddress(15, 4, 4)

	for i := 0; i < 2; i++ {
		tile, err := f.FetchTile(context.Background(), addr)
		if !errors.Is(err, ErrUndecodable) {
			t.Errorf("FetchTile() error = %v, want ErrUndecodable", err)
		}
		if !tile.Empty() {
			t.Errorf("layers = %v, want none", tile.LayerNames())
		}
	}
	if f.Store().Len() != 0 {
		t.Errorf("store len = %d, undecodable tiles must not be cached", f.Store().Len())
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("network calls = %d, want 2", got)
	}
}
