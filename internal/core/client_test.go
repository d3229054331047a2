package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSubmissionClient_Submit(t *testing.T) {
	var gotAuth, gotTenant, gotContentType string
	var gotPayload SubmissionPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTenant = r.Header.Get("tenant-key")
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotPayload)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"ivn_123","hid":"ABCDEF","treesPlanted":150}`))
	}))
	defer srv.Close()

	client := NewHTTPSubmissionClient(srv.URL, "secret-token", "ten_test", time.Second)

	payload, err := BuildPayload(readyRecord(), "proj_test", time.Now())
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	resp, err := client.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotTenant != "ten_test" {
		t.Errorf("tenant-key = %q", gotTenant)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotPayload.Type != "multi-tree-registration" {
		t.Errorf("posted Type = %q", gotPayload.Type)
	}

	if resp.ID != "ivn_123" || resp.HID != "ABCDEF" {
		t.Errorf("response = %+v", resp)
	}
	if n, _ := resp.TreesPlanted.Int64(); n != 150 {
		t.Errorf("TreesPlanted = %v", resp.TreesPlanted)
	}
}

func TestHTTPSubmissionClient_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"geometry outside project"}`))
	}))
	defer srv.Close()

	client := NewHTTPSubmissionClient(srv.URL, "token", "tenant", time.Second)
	payload, _ := BuildPayload(readyRecord(), "proj", time.Now())

	_, err := client.Submit(context.Background(), payload)

	var rejection *APIRejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("error = %v, want *APIRejectionError", err)
	}
	if rejection.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", rejection.StatusCode)
	}
	if rejection.Body != `{"message":"geometry outside project"}` {
		t.Errorf("Body = %q", rejection.Body)
	}
}

func TestHTTPSubmissionClient_NetworkError(t *testing.T) {
	// Closed server: connection refused
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewHTTPSubmissionClient(srv.URL, "token", "tenant", time.Second)
	payload, _ := BuildPayload(readyRecord(), "proj", time.Now())

	_, err := client.Submit(context.Background(), payload)

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
}

func TestHTTPSubmissionClient_UndecodableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewHTTPSubmissionClient(srv.URL, "token", "tenant", time.Second)
	payload, _ := BuildPayload(readyRecord(), "proj", time.Now())

	_, err := client.Submit(context.Background(), payload)

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
}
