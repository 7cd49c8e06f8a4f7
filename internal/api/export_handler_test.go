package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/export"
	"github.com/lamoeditor/lamoeditor/internal/session"
)

func (e *testEnv) addSegment(name string, start, end float64) {
	e.t.Helper()
	path := e.video(name)
	e.expect(e.do(http.MethodPost, "/timeline/segments", AppendSegmentRequest{Path: path, StartTime: &start, EndTime: &end}), http.StatusCreated)
}

func (e *testEnv) startExport(output string) JobResponse {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/export", session.ExportRequest{OutputPath: output})
	e.expect(rr, http.StatusAccepted)
	return decodeInto[JobResponse](e.t, rr)
}

func (e *testEnv) wait(id string) export.Status {
	e.t.Helper()
	job, ok := e.cfg.Exports.Job(id)
	if !ok {
		e.t.Fatalf("job %s not tracked", id)
	}
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		e.t.Fatal("export did not finish")
	}
	return job.Status()
}

func TestExport_Succeeds(t *testing.T) {
	env := newTestEnv(t)
	env.addSegment("a.mp4", 0, 2)

	job := env.startExport(filepath.Join(env.dir, "out"))
	if job.ID == "" || job.Format != "MP4 (H.264)" || !strings.HasSuffix(job.OutputPath, "out.mp4") {
		t.Fatalf("job = %+v", job)
	}
	if st := env.wait(job.ID); st.State != export.StateSucceeded || st.Progress != 100 {
		t.Fatalf("status = %+v", st)
	}

	rr := env.do(http.MethodGet, "/export/jobs/"+job.ID, nil)
	env.expect(rr, http.StatusOK)
	if got := decodeInto[JobResponse](t, rr); got.Status != "succeeded" {
		t.Errorf("job status = %+v", got)
	}

	rr = env.do(http.MethodGet, "/export/jobs", nil)
	env.expect(rr, http.StatusOK)
	if jobs := decodeInto[JobsResponse](t, rr); len(jobs.Jobs) != 1 || jobs.Jobs[0].ID != job.ID {
		t.Errorf("jobs = %+v", jobs)
	}

	rr = env.do(http.MethodGet, "/export/jobs/"+job.ID+"/output", nil)
	env.expect(rr, http.StatusOK)
	if rr.Body.String() != "rendered" {
		t.Errorf("output body = %q", rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/export/jobs/"+job.ID+"/cancel", nil)
	env.expect(rr, http.StatusConflict)
}

func TestExport_BusyAndCancel(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Gate = make(chan struct{})
	env.addSegment("a.mp4", 0, 2)

	job := env.startExport(filepath.Join(env.dir, "first.mp4"))

	rr := env.do(http.MethodPost, "/export", session.ExportRequest{OutputPath: filepath.Join(env.dir, "second.mp4")})
	env.expect(rr, http.StatusConflict)
	if code := decodeJSONBody(t, rr)["code"]; code != "EXPORT_BUSY" {
		t.Errorf("code = %v", code)
	}

	rr = env.do(http.MethodGet, "/status", nil)
	env.expect(rr, http.StatusOK)
	if st := decodeInto[StatusResponse](t, rr); st.State != "exporting" || st.ActiveJob == nil || st.ActiveJob.ID != job.ID {
		t.Errorf("status while exporting = %+v", st)
	}

	rr = env.do(http.MethodGet, "/export/jobs/"+job.ID+"/output", nil)
	env.expect(rr, http.StatusConflict)

	env.expect(env.do(http.MethodPost, "/export/jobs/"+job.ID+"/cancel", nil), http.StatusAccepted)
	st := env.wait(job.ID)
	if st.State != export.StateFailed || st.Error != export.CancelledMessage {
		t.Fatalf("cancelled status = %+v", st)
	}

	rec, err := env.repo.GetJob(context.Background(), job.ID)
	if err != nil || rec == nil {
		t.Fatalf("GetJob() = %v, %v", rec, err)
	}
	if rec.Status != catalog.JobStatusFailed {
		t.Errorf("stored status = %q", rec.Status)
	}

	rr = env.do(http.MethodGet, "/status", nil)
	if st := decodeInto[StatusResponse](t, rr); st.State != "error" || st.LastError != export.CancelledMessage {
		t.Errorf("status after cancel = %+v", st)
	}
}

func TestJobEvents_WebSocket(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Gate = make(chan struct{})
	env.addSegment("a.mp4", 0, 2)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	job := env.startExport(filepath.Join(env.dir, "out.mp4"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/export/jobs/" + job.ID + "/events?" + TokenQueryParam + "=" + testToken
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	var first export.Event
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatal(err)
	}
	if first.Type != export.EventProgress || first.JobID != job.ID {
		t.Fatalf("first event = %+v", first)
	}
	close(env.engine.Gate)

	last := first.Progress
	for {
		var ev export.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("stream ended before terminal event: %v", err)
		}
		if ev.Progress < last {
			t.Errorf("progress went backwards: %d after %d", ev.Progress, last)
		}
		last = ev.Progress
		if ev.Terminal() {
			if ev.Type != export.EventSucceeded || ev.Progress != 100 {
				t.Errorf("terminal event = %+v", ev)
			}
			break
		}
	}

	var extra export.Event
	err = wsjson.Read(ctx, conn, &extra)
	if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
		t.Errorf("close status = %v (err %v), want normal closure", status, err)
	}
}

func TestJobEvents_UnknownJob(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/export/jobs/missing/events?" + TokenQueryParam + "=" + testToken
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Error("dial timed out instead of being refused")
	}
}
