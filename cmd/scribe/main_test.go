package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/drafting"
	"github.com/poiesic/scribe/retrieval"
	"github.com/poiesic/scribe/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runApp runs the CLI against an empty HOME and a missing config file.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	full := append([]string{"scribe", "--config", filepath.Join(t.TempDir(), "missing.toml")}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"INFO", false},
		{"warning", false},
		{"error", false},
		{"", false},
		{"loud", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := setupLogger(tt.level, "", "text")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scribe.log")
		require.NoError(t, setupLogger("info", path, "json"))
		slog.Info("hello")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"hello"`)
	})
}

func TestCommandFlags(t *testing.T) {
	t.Run("run requires tenant", func(t *testing.T) {
		_, err := runApp(t, "run", "session.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tenant")
	})

	t.Run("regenerate requires instruction", func(t *testing.T) {
		_, err := runApp(t, "regenerate", "--tenant", "t1", "-")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instruction")
	})

	t.Run("reindex rejects zero batch size", func(t *testing.T) {
		_, err := runApp(t, "reindex", "--batch-size", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch-size")
	})

	t.Run("invalid global log level", func(t *testing.T) {
		_, err := runApp(t, "--log-level", "loud", "search", "--tenant", "t1", "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runApp(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[pipeline]")

	_, err = runApp(t, "config", "init", "--path", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = runApp(t, "config", "init", "--path", path, "--force")
	assert.NoError(t, err)
}

// fakePipeline records requests and returns canned results.
type fakePipeline struct {
	runs     []workflow.Request
	contents []string
	runErr   error
	report   core.Report
	results  []*core.SearchResult
}

func (f *fakePipeline) Run(_ context.Context, req workflow.Request) (core.PipelineState, error) {
	f.runs = append(f.runs, req)
	if data, err := os.ReadFile(req.SourceRef); err == nil {
		f.contents = append(f.contents, string(data))
	}
	state := core.PipelineState{
		RunID:     "run-1",
		TenantID:  req.TenantID,
		SourceRef: req.SourceRef,
		Segments:  []core.Segment{{Text: "Client reports poor sleep."}},
	}
	if f.runErr != nil {
		state.Status = core.StatusFailed
		return state, f.runErr
	}
	state.Status = core.StatusComplete
	state.Report = f.report
	return state, nil
}

func (f *fakePipeline) RegenerateSection(_ context.Context, content, instruction, tenantID string) (string, error) {
	if tenantID == "" {
		return "", core.ErrTenantRequired
	}
	if instruction == "" {
		return "", drafting.ErrInstructionRequired
	}
	return strings.ToUpper(content), nil
}

func (f *fakePipeline) Search(_ context.Context, _, _ string, _ int, _ retrieval.SearchMonitor) ([]*core.SearchResult, error) {
	return f.results, nil
}

// testServer returns a server over p and its upload directory, seeded with
// session.txt.
func testServer(t *testing.T, p pipeline) (*fiber.App, string) {
	t.Helper()
	uploads := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "session.txt"), []byte("Client reports poor sleep."), 0o644))
	return newServer(p, uploads, slog.New(slog.NewTextHandler(io.Discard, nil))), uploads
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func doRequest(t *testing.T, p pipeline, method, target, body string) (int, map[string]any) {
	t.Helper()
	app, _ := testServer(t, p)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return send(t, app, req)
}

func TestServer(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		status, body := doRequest(t, &fakePipeline{}, "GET", "/healthz", "")
		assert.Equal(t, 200, status)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("run", func(t *testing.T) {
		p := &fakePipeline{report: core.Report{"Reason": json.RawMessage(`"referral"`)}}
		status, body := doRequest(t, p, "POST", "/runs", `{"source": "session.txt", "tenant": "t1"}`)
		assert.Equal(t, 200, status)
		assert.Equal(t, "complete", body["status"])
		assert.NotContains(t, body, "segments")
		require.Len(t, p.runs, 1)
		assert.Equal(t, "t1", p.runs[0].TenantID)
		assert.Equal(t, []string{"Client reports poor sleep."}, p.contents)
	})

	t.Run("run without source", func(t *testing.T) {
		status, _ := doRequest(t, &fakePipeline{}, "POST", "/runs", `{"tenant": "t1"}`)
		assert.Equal(t, 400, status)
	})

	t.Run("failed run maps store errors", func(t *testing.T) {
		p := &fakePipeline{runErr: core.ErrStoreUnavailable}
		status, body := doRequest(t, p, "POST", "/runs", `{"source": "session.txt", "tenant": "t1"}`)
		assert.Equal(t, 503, status)
		assert.Contains(t, body["error"], "unavailable")
		state, ok := body["state"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "failed", state["status"])
		assert.NotContains(t, state, "segments")
	})

	t.Run("regenerate", func(t *testing.T) {
		status, body := doRequest(t, &fakePipeline{}, "POST", "/regenerate",
			`{"content": "slept well", "instruction": "shout", "tenant": "t1"}`)
		assert.Equal(t, 200, status)
		assert.Equal(t, "SLEPT WELL", body["content"])

		status, _ = doRequest(t, &fakePipeline{}, "POST", "/regenerate", `{"content": "x", "tenant": "t1"}`)
		assert.Equal(t, 400, status)
	})

	t.Run("search", func(t *testing.T) {
		p := &fakePipeline{results: []*core.SearchResult{
			{Record: &core.IndexedRecord{ID: "r1", Text: "poor sleep", Vector: []float32{1}}, Score: 0.9},
		}}
		status, body := doRequest(t, p, "GET", "/search?tenant=t1&q=sleep", "")
		assert.Equal(t, 200, status)
		results, ok := body["results"].([]any)
		require.True(t, ok)
		require.Len(t, results, 1)
		hit := results[0].(map[string]any)
		assert.Equal(t, "r1", hit["id"])
		assert.NotContains(t, hit, "Vector")
	})
}

func TestServerConfinesPaths(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "passwd")
	require.NoError(t, os.WriteFile(outside, []byte("root:x:0:0"), 0o644))

	tests := []struct {
		name string
		body func(t *testing.T, uploads string) string
	}{
		{"absolute path outside", func(*testing.T, string) string {
			return fmt.Sprintf(`{"source": %q, "tenant": "t1"}`, outside)
		}},
		{"relative escape", func(*testing.T, string) string {
			return `{"source": "../../../../etc/passwd", "tenant": "t1"}`
		}},
		{"template outside", func(*testing.T, string) string {
			return fmt.Sprintf(`{"source": "session.txt", "template": %q, "tenant": "t1"}`, outside)
		}},
		{"symlink out of uploads", func(t *testing.T, uploads string) string {
			link := filepath.Join(uploads, "link.txt")
			if err := os.Symlink(outside, link); err != nil {
				t.Skip("symlinks unavailable")
			}
			return `{"source": "link.txt", "tenant": "t1"}`
		}},
		{"missing file", func(*testing.T, string) string {
			return `{"source": "nope.txt", "tenant": "t1"}`
		}},
		{"upload directory itself", func(t *testing.T, uploads string) string {
			return fmt.Sprintf(`{"source": %q, "tenant": "t1"}`, uploads)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			app, uploads := testServer(t, p)
			req := httptest.NewRequest("POST", "/runs", strings.NewReader(tt.body(t, uploads)))
			req.Header.Set("Content-Type", "application/json")

			status, body := send(t, app, req)
			assert.Equal(t, 400, status)
			assert.Contains(t, body["error"], "outside the upload directory")
			assert.Empty(t, p.runs)
		})
	}

	t.Run("absolute path inside", func(t *testing.T) {
		p := &fakePipeline{}
		app, uploads := testServer(t, p)
		body := fmt.Sprintf(`{"source": %q, "tenant": "t1"}`, filepath.Join(uploads, "session.txt"))
		req := httptest.NewRequest("POST", "/runs", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		status, _ := send(t, app, req)
		assert.Equal(t, 200, status)
		require.Len(t, p.runs, 1)
	})
}

func TestServerUpload(t *testing.T) {
	p := &fakePipeline{}
	app, uploads := testServer(t, p)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("tenant", "t1"))
	part, err := mw.CreateFormFile("source", "../../evil/Session.TXT")
	require.NoError(t, err)
	_, err = part.Write([]byte("Client describes a supportive family."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/runs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, body := send(t, app, req)
	assert.Equal(t, 200, status)
	assert.NotContains(t, body, "segments")

	require.Len(t, p.runs, 1)
	assert.Equal(t, "t1", p.runs[0].TenantID)
	assert.Equal(t, uploads, filepath.Dir(p.runs[0].SourceRef))
	assert.Equal(t, ".txt", filepath.Ext(p.runs[0].SourceRef))
	assert.Equal(t, []string{"Client describes a supportive family."}, p.contents)
	assert.NoFileExists(t, p.runs[0].SourceRef, "uploads are removed after the run")

	t.Run("missing source file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("tenant", "t1"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest("POST", "/runs", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		status, _ := send(t, app, req)
		assert.Equal(t, 400, status)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 400, statusFor(core.ErrUnsupportedDocument))
	assert.Equal(t, 400, statusFor(core.ErrInvalidTemplate))
	assert.Equal(t, 503, statusFor(core.ErrStoreUnavailable))
	assert.Equal(t, 504, statusFor(context.DeadlineExceeded))
	assert.Equal(t, 500, statusFor(core.ErrMalformedReport))
}

func TestDropWatcher(t *testing.T) {
	w := &dropWatcher{
		extensions: []string{".pdf", ".txt"},
		tenantID:   "t1",
		settle:     10 * time.Millisecond,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	t.Run("accepts", func(t *testing.T) {
		assert.True(t, w.accepts("/in/session.txt"))
		assert.True(t, w.accepts("/in/SESSION.PDF"))
		assert.False(t, w.accepts("/in/session.report.json"))
		assert.False(t, w.accepts("/in/.session.txt"))
		assert.False(t, w.accepts("/in/session.exe"))
	})

	t.Run("writes report beside transcript", func(t *testing.T) {
		dir := t.TempDir()
		p := &fakePipeline{report: core.Report{"Reason": json.RawMessage(`"referral"`)}}
		w.pipeline = p

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Watch(ctx, dir) }()

		report := filepath.Join(dir, "session.report.json")
		require.Eventually(t, func() bool {
			// Keep touching the file until the watcher has registered.
			_ = os.WriteFile(filepath.Join(dir, "session.txt"), []byte("transcript"), 0o644)
			_, err := os.Stat(report)
			return err == nil
		}, 5*time.Second, 50*time.Millisecond)

		cancel()
		require.NoError(t, <-done)

		data, err := os.ReadFile(report)
		require.NoError(t, err)
		assert.JSONEq(t, `{"Reason": "referral"}`, string(data))
		assert.Equal(t, "t1", p.runs[0].TenantID)
	})
}

func TestPrintRunSummary(t *testing.T) {
	state, err := core.NewState("session.txt", "", "t1")
	require.NoError(t, err)
	state = state.WithReviewNotes(map[string]core.ReviewNote{
		"Reason": {Score: 90, Verdict: core.VerdictDone},
		"Date":   {Score: 40, Suggestion: "Add the session date."},
	})
	state = state.Record("ingest", "summary failed for segment 1")

	var out bytes.Buffer
	printRunSummary(&out, state)
	assert.Contains(t, out.String(), "Reason")
	assert.Contains(t, out.String(), "Add the session date.")
	assert.Contains(t, out.String(), "warning: summary failed for segment 1")
}
