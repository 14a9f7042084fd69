package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakegate/internal/domain"
)

func testSpec() JobSpec {
	return JobSpec{
		JobID: "job-1",
		Owner: "alice",
		Request: domain.ResourceRequest{
			Resolution: domain.Res1080p, FPS: 30, DurationMinutes: 1, AgentCount: 2, StylePack: "cinematic",
		},
		PriorityScore: 12.4,
	}
}

func TestStub_Success(t *testing.T) {
	res := <-(&Stub{}).Execute(context.Background(), testSpec())

	assert.True(t, res.Success)
	assert.Equal(t, "1080p", res.ArtifactMetadata["resolution"])
	assert.Equal(t, "job-1", res.ArtifactMetadata["job_id"])
}

func TestStub_Fail(t *testing.T) {
	stub := &Stub{Fail: func(JobSpec) error { return ErrRejected }}

	res := <-stub.Execute(context.Background(), testSpec())
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorReason, "rejected by executor")
}

func TestStub_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := (&Stub{Delay: time.Hour}).Execute(ctx, testSpec())
	cancel()

	select {
	case res := <-ch:
		assert.False(t, res.Success)
		assert.Contains(t, res.ErrorReason, context.Canceled.Error())
	case <-time.After(5 * time.Second):
		t.Fatal("stub did not observe cancellation")
	}
}

func TestStub_ChannelClosedAfterResult(t *testing.T) {
	ch := (&Stub{}).Execute(context.Background(), testSpec())
	<-ch
	_, ok := <-ch
	assert.False(t, ok)
}

func TestHTTPExecutor(t *testing.T) {
	var got JobSpec
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{Success: true, ArtifactMetadata: map[string]string{"uri": "s3://out/job-1.mp4"}})
	}))
	defer srv.Close()

	res := <-NewHTTPExecutor(srv.URL).Execute(context.Background(), testSpec())
	require.True(t, res.Success, res.ErrorReason)
	assert.Equal(t, "s3://out/job-1.mp4", res.ArtifactMetadata["uri"])
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, domain.Res1080p, got.Request.Resolution)
}

func TestHTTPExecutor_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "render farm offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := <-NewHTTPExecutor(srv.URL).Execute(context.Background(), testSpec())
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorReason, "503")
	assert.Contains(t, res.ErrorReason, domain.ErrExecutorFailure.Error())
}

func TestHTTPExecutor_RemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{ErrorReason: "agent crashed"})
	}))
	defer srv.Close()

	res := <-NewHTTPExecutor(srv.URL).Execute(context.Background(), testSpec())
	assert.False(t, res.Success)
	assert.Equal(t, "agent crashed", res.ErrorReason)
}

func TestHTTPExecutor_CancelAbortsSlowRemote(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch := NewHTTPExecutor(srv.URL).Execute(ctx, testSpec())
	time.AfterFunc(50*time.Millisecond, cancel)

	select {
	case res := <-ch:
		assert.False(t, res.Success)
		assert.Contains(t, res.ErrorReason, domain.ErrExecutorFailure.Error())
		assert.Contains(t, res.ErrorReason, context.Canceled.Error())
	case <-time.After(5 * time.Second):
		t.Fatal("remote call was not aborted by cancellation")
	}
}

func TestFunc_PanicBecomesFailure(t *testing.T) {
	f := Func(func(context.Context, JobSpec) Result { panic("boom") })

	res := <-f.Execute(context.Background(), testSpec())
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorReason, "boom")
}
