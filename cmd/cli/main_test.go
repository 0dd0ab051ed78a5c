package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"store_status.csv": "store_id,status,timestamp_utc\n" +
			"s1,active,2024-01-25 09:00:00.000000 UTC\n" +
			"s1,inactive,2024-01-25 09:30:00.000000 UTC\n" +
			"s1,active,2024-01-25 10:00:00.000000 UTC\n",
		"menu_hours.csv": "store_id,dayOfWeek,start_time_local,end_time_local\n",
		"timezones.csv":  "store_id,timezone_str\ns1,UTC\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestCompute_AllStores(t *testing.T) {
	out, err := run(t, "compute", writeData(t))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[1] != "s1,30,23.5,167.5,30,0.5,0.5" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCompute_StoreAndNow(t *testing.T) {
	out, err := run(t, "compute", writeData(t), "--store", "s1", "--now", "2024-01-25T09:30:00Z")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[1] != "s1,60,24,168,0,0,0" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCompute_MissingDir(t *testing.T) {
	if _, err := run(t, "compute", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestReport_StatesFromAPI(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "pub" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("report_id") {
		case "running":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"Running"}`))
		case "done":
			w.Header().Set("Content-Disposition", `attachment; filename="report_done.csv"`)
			_, _ = w.Write([]byte("store_id\ns1\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Report not found"}`))
		}
	}))
	defer ts.Close()

	out, err := run(t, "--api", ts.URL, "--key", "pub", "report", "running")
	if err != nil || strings.TrimSpace(out) != "Running" {
		t.Fatalf("running: out=%q err=%v", out, err)
	}

	path := filepath.Join(t.TempDir(), "r.csv")
	if _, err := run(t, "--api", ts.URL, "--key", "pub", "report", "done", "-o", path); err != nil {
		t.Fatalf("done: %v", err)
	}
	if b, _ := os.ReadFile(path); string(b) != "store_id\ns1\n" {
		t.Fatalf("file=%q", b)
	}

	_, err = run(t, "--api", ts.URL, "--key", "pub", "report", "other")
	if err == nil || !strings.Contains(err.Error(), "Report not found") {
		t.Fatalf("missing: err=%v", err)
	}
}

func TestTrigger_WaitDownloads(t *testing.T) {
	var polls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trigger_report":
			_, _ = w.Write([]byte(`{"report_id":"r1"}`))
		case "/get_report":
			if polls.Add(1) == 1 {
				_, _ = w.Write([]byte(`{"status":"Running"}`))
				return
			}
			w.Header().Set("Content-Disposition", `attachment; filename="report_r1.csv"`)
			_, _ = w.Write([]byte("csv-body"))
		}
	}))
	defer ts.Close()

	out, err := run(t, "--api", ts.URL, "trigger", "--wait", "--interval", "10ms")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if out != "csv-body" || polls.Load() != 2 {
		t.Fatalf("out=%q polls=%d", out, polls.Load())
	}
}

func TestIngest_PrintsMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message":"Ingestion started"}`))
	}))
	defer ts.Close()

	out, err := run(t, "--api", ts.URL, "ingest", "/data")
	if err != nil || strings.TrimSpace(out) != "Ingestion started" {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestCompute_StoresInParallelKeepOrder(t *testing.T) {
	dir := writeData(t)
	f, err := os.OpenFile(filepath.Join(dir, "store_status.csv"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("s2,inactive,2024-01-25 09:00:00.000000 UTC\n")
	f.Close()

	out, err := run(t, "compute", dir, "--store", "s2,s1", "--now", "2024-01-25T09:30:00Z", "--concurrency", "2")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || lines[1] != "s1,60,24,168,0,0,0" || !strings.HasPrefix(lines[2], "s2,0,") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
