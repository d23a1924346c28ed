package results

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

func sampleOutcome() Outcome {
	return Outcome{
		UserID:        "user-1",
		UserName:      "Ada",
		Status:        StatusSuccess,
		SuccessTime:   int64Ptr(61_500),
		UsedFlags:     12,
		NoFlagWin:     boolPtr(false),
		TimePlayed:    61_500,
		CellsRevealed: 330,
	}
}

type reporterFunc func(ctx context.Context, o Outcome) error

func (f reporterFunc) Report(ctx context.Context, o Outcome) error { return f(ctx, o) }

func TestHTTPReporterPostsOutcome(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/games", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	r := NewHTTPReporter(srv.URL+"/", time.Second)
	assert.Equal(t, srv.URL+"/games", r.Endpoint())
	require.NoError(t, r.Report(context.Background(), sampleOutcome()))

	assert.Equal(t, "user-1", got["userId"])
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, float64(61_500), got["successTime"])
	assert.Equal(t, false, got["noFlagWin"])
	assert.Nil(t, got["userImage"])
	assert.NotContains(t, got, "time")
	assert.NotContains(t, got, "gameRestarts")
}

func TestAbandonedOutcomeSendsNullSuccessTime(t *testing.T) {
	abandoned := Outcome{
		UserID:       "user-1",
		UserName:     "Ada",
		Status:       StatusAbandoned,
		Time:         int64Ptr(4_000),
		TimePlayed:   4_000,
		GameRestarts: new(int),
	}

	raw, err := json.Marshal(abandoned)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Contains(t, got, "successTime")
	assert.Nil(t, got["successTime"])
	assert.Equal(t, float64(4_000), got["time"])
	assert.Equal(t, float64(0), got["gameRestarts"])

	var back Outcome
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, abandoned, back)

	defeat := abandoned
	defeat.Status = StatusDefeat
	defeat.GameRestarts = nil
	raw, err = json.Marshal(defeat)
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.NotContains(t, got, "successTime")
}

func TestHTTPReporterErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPReporter(srv.URL, time.Second).Report(context.Background(), sampleOutcome())
	assert.ErrorContains(t, err, "500")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	err = NewHTTPReporter(slow.URL, 50*time.Millisecond).Report(context.Background(), sampleOutcome())
	assert.Error(t, err)
}

func TestLedgerStoresOutcomes(t *testing.T) {
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "nested", "outcomes.db"))
	require.NoError(t, err)
	defer ledger.Close()

	ctx := context.Background()
	restarts := 2
	image := "https://example.com/a.png"
	require.NoError(t, ledger.Report(ctx, sampleOutcome()))
	require.NoError(t, ledger.Report(ctx, Outcome{
		UserID:       "user-1",
		UserName:     "Ada",
		UserImage:    &image,
		Status:       StatusAbandoned,
		Time:         int64Ptr(4_000),
		TimePlayed:   4_000,
		GameRestarts: &restarts,
	}))
	require.NoError(t, ledger.Report(ctx, Outcome{UserID: "user-2", UserName: "Bob", Status: StatusDefeat}))

	entries, err := ledger.Recent(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, StatusAbandoned, entries[0].Outcome.Status)
	require.NotNil(t, entries[0].Outcome.GameRestarts)
	assert.Equal(t, 2, *entries[0].Outcome.GameRestarts)
	require.NotNil(t, entries[0].Outcome.UserImage)
	assert.Equal(t, image, *entries[0].Outcome.UserImage)
	assert.Nil(t, entries[0].Outcome.SuccessTime)

	assert.Equal(t, StatusSuccess, entries[1].Outcome.Status)
	require.NotNil(t, entries[1].Outcome.NoFlagWin)
	assert.False(t, *entries[1].Outcome.NoFlagWin)
	assert.Equal(t, 330, entries[1].Outcome.CellsRevealed)
}

func TestFanoutJoinsErrors(t *testing.T) {
	var calls atomic.Int32
	ok := reporterFunc(func(context.Context, Outcome) error { calls.Add(1); return nil })
	boom := errors.New("boom")
	bad := reporterFunc(func(context.Context, Outcome) error { calls.Add(1); return boom })

	err := Fanout{ok, bad, ok}.Report(context.Background(), sampleOutcome())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls.Load())

	assert.NoError(t, Fanout{ok}.Report(context.Background(), sampleOutcome()))
}

func TestDispatcherSettlesOnceAfterReport(t *testing.T) {
	reported := make(chan Outcome, 1)
	d := NewDispatcher(reporterFunc(func(_ context.Context, o Outcome) error {
		reported <- o
		return nil
	}), 4, time.Second, time.Second, zap.NewNop())

	var settled atomic.Int32
	d.Submit(sampleOutcome(), func() { settled.Add(1) })

	select {
	case o := <-reported:
		assert.Equal(t, StatusSuccess, o.Status)
	case <-time.After(time.Second):
		t.Fatal("outcome was not reported")
	}

	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, int32(1), settled.Load())
}

func TestDispatcherFallbackWhenReporterHangs(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(reporterFunc(func(ctx context.Context, _ Outcome) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	}), 1, 2*time.Second, 20*time.Millisecond, zap.NewNop())

	settled := make(chan struct{}, 2)
	start := time.Now()
	d.Submit(sampleOutcome(), func() { settled <- struct{}{} })

	select {
	case <-settled:
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(time.Second):
		t.Fatal("fallback did not fire")
	}

	close(release)
	require.NoError(t, d.Wait(context.Background()))
	assert.Len(t, settled, 0, "settle must only run once")
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	d := NewDispatcher(reporterFunc(func(context.Context, Outcome) error {
		calls.Add(1)
		<-release
		return nil
	}), 1, time.Second, time.Second, zap.NewNop())

	d.Submit(sampleOutcome(), nil)

	dropped := make(chan struct{}, 1)
	d.Submit(sampleOutcome(), func() { dropped <- struct{}{} })

	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("saturated submit should settle immediately")
	}

	close(release)
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcherWithoutReporter(t *testing.T) {
	d := NewDispatcher(nil, 1, time.Second, time.Second, zap.NewNop())
	settled := false
	d.Submit(sampleOutcome(), func() { settled = true })
	assert.True(t, settled)
}
