package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"rainfall-dashboard/internal/apperrors"
	"rainfall-dashboard/internal/rainfall"
	"rainfall-dashboard/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *session.Cell) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cell := session.New(nil)
	if err := cell.Establish("tok-test", session.RoleAdmin); err != nil {
		t.Fatalf("establish: %v", err)
	}
	c, err := New(server.URL, cell, server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, cell
}

func TestRecordsSendsBearerAndRequestID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/data" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-test" {
			t.Errorf("authorization: got %q", got)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Errorf("request id missing")
		}
		_ = json.NewEncoder(w).Encode([]rainfall.Record{{ID: 1, Year: 2020, Amount: 700.5}})
	})
	records, err := c.Records(context.Background())
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 1 || records[0].Year != 2020 {
		t.Fatalf("records: got %+v", records)
	}
}

func TestLoginIsUnauthenticated(t *testing.T) {
	c, cell := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("login should not carry a token")
		}
		_ = json.NewEncoder(w).Encode(LoginResponse{Token: "fresh", Role: "admin"})
	})
	if err := cell.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	result, err := c.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token != "fresh" || result.Role != "admin" {
		t.Fatalf("login: got %+v", result)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status  int
		body    string
		want    error
		message string
	}{
		{http.StatusUnauthorized, `{"error":"Token has expired"}`, apperrors.ErrAuthentication, "Token has expired"},
		{http.StatusForbidden, `{"error":"Admin access required"}`, apperrors.ErrAuthorization, "Admin access required"},
		{http.StatusUnprocessableEntity, `{"error":"year is required"}`, apperrors.ErrValidation, "year is required"},
		{http.StatusBadRequest, `{"error":"Year already exists"}`, apperrors.ErrRejected, "Year already exists"},
		{http.StatusServiceUnavailable, ``, apperrors.ErrTransient, "Server temporarily unavailable"},
		{http.StatusInternalServerError, `not json`, apperrors.ErrRejected, "Request failed (HTTP 500)"},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		})
		_, err := c.CreateRecord(context.Background(), rainfall.Input{Year: 2023, Amount: 1})
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: got %v", tc.status, err)
		}
		if got := apperrors.Message(err, ""); got != tc.message {
			t.Fatalf("status %d message: got %q", tc.status, got)
		}
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	c, err := New(url, session.New(nil), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Login(context.Background(), "a", "b")
	if !errors.Is(err, apperrors.ErrTransient) {
		t.Fatalf("got %v", err)
	}
}

func TestSignedOutRequestNeverLeaves(t *testing.T) {
	called := false
	c, cell := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	if err := cell.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	err := c.DeleteRecord(context.Background(), 7)
	if !errors.Is(err, apperrors.ErrAuthentication) {
		t.Fatalf("got %v", err)
	}
	if called {
		t.Fatalf("request should not be sent")
	}
}

func TestUpdateAndDeletePaths(t *testing.T) {
	var seen []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			var input rainfall.Input
			_ = json.NewDecoder(r.Body).Decode(&input)
			_ = json.NewEncoder(w).Encode(rainfall.Record{ID: 4, Year: input.Year, Amount: input.Amount})
			return
		}
		_, _ = io.WriteString(w, `{}`)
	})
	updated, err := c.UpdateRecord(context.Background(), 4, rainfall.Input{Year: 2001, Amount: 12})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Year != 2001 {
		t.Fatalf("updated: got %+v", updated)
	}
	if err := c.DeleteRecord(context.Background(), 4); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(seen) != 2 || seen[0] != "PUT /data/4" || seen[1] != "DELETE /data/4" {
		t.Fatalf("requests: got %v", seen)
	}
}

func TestNewRejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.test", nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}
