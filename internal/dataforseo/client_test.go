package dataforseo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, "login", "password", 5*time.Second)
	return client, server
}

func TestSubmitJobReturnsTaskID(t *testing.T) {
	var gotPath string
	var gotAuth bool
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _, gotAuth = r.BasicAuth()

		var body []map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("request body must be an array of tasks: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status_code":20000,"tasks":[{"id":"task-123","status_code":20100,"status_message":"Task Created."}]}`))
	})
	defer server.Close()

	taskID, err := client.SubmitJob(context.Background(), "/on_page", map[string]interface{}{"target": "example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskID != "task-123" {
		t.Fatalf("expected task-123, got %s", taskID)
	}
	if gotPath != "/on_page/task_post" {
		t.Fatalf("expected task_post path, got %s", gotPath)
	}
	if !gotAuth {
		t.Fatal("expected basic auth on request")
	}
}

func TestSubmitJobRejection(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":40101,"status_message":"Auth failed."}`))
	})
	defer server.Close()

	_, err := client.SubmitJob(context.Background(), "/on_page", nil)
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if subErr.StatusCode != 40101 {
		t.Fatalf("expected status 40101, got %d", subErr.StatusCode)
	}
}

func TestFetchJobStatusNotReady(t *testing.T) {
	for _, code := range []int{40601, 40602} {
		client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			resp := map[string]interface{}{
				"status_code": 20000,
				"tasks": []map[string]interface{}{
					{"id": "task-1", "status_code": code, "status_message": "Task In Queue."},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		})

		status, err := client.FetchJobStatus(context.Background(), "/on_page", "task-1")
		server.Close()
		if err != nil {
			t.Fatalf("code %d: unexpected error: %v", code, err)
		}
		if status.Ready {
			t.Fatalf("code %d: expected not ready", code)
		}
	}
}

func TestFetchJobStatusCompleted(t *testing.T) {
	var gotPath string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status_code":20000,"tasks":[{"id":"task-1","status_code":20000,"result":[{"score":87}]}]}`))
	})
	defer server.Close()

	status, err := client.FetchJobStatus(context.Background(), "/on_page", "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Ready || status.Err != nil {
		t.Fatalf("expected completed status, got %+v", status)
	}
	if score, ok := status.Result["score"].(float64); !ok || score != 87 {
		t.Fatalf("expected score 87 in result, got %v", status.Result)
	}
	if gotPath != "/on_page/task_get/task-1" {
		t.Fatalf("unexpected poll path %s", gotPath)
	}
}

func TestFetchJobStatusProviderFailure(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":20000,"tasks":[{"id":"task-1","status_code":40501,"status_message":"Invalid Field."}]}`))
	})
	defer server.Close()

	status, err := client.FetchJobStatus(context.Background(), "/on_page", "task-1")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if !status.Ready {
		t.Fatal("provider failure must be terminal")
	}
	var jobErr *JobError
	if !errors.As(status.Err, &jobErr) {
		t.Fatalf("expected JobError, got %v", status.Err)
	}
}

func TestFetchJobStatusTransportError(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer server.Close()

	if _, err := client.FetchJobStatus(context.Background(), "/on_page", "task-1"); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
}

func TestLiveCallReturnsFirstResult(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":20000,"tasks":[{"id":"task-9","status_code":20000,"result":[{"items":[1,2,3]}]}]}`))
	})
	defer server.Close()

	result, err := client.LiveCall(context.Background(), "/serp/google/organic/live/regular", map[string]interface{}{"keyword": "golang"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result["items"]; !ok {
		t.Fatalf("expected items key in result, got %v", result)
	}
}

func TestCancelJobPostsForceStop(t *testing.T) {
	var gotPath string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status_code":20000}`))
	})
	defer server.Close()

	if err := client.CancelJob(context.Background(), "/on_page", "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/on_page/force_stop" {
		t.Fatalf("unexpected cancel path %s", gotPath)
	}
}
