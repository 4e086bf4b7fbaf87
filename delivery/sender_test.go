package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
)

func newCallbackJob(url string) *delivery.Job {
	return &delivery.Job{
		ID:             id.NewJobID(),
		Kind:           delivery.KindCallback,
		SubscriptionID: id.NewSubscriptionID(),
		Event:          "orders.created",
		URL:            url,
		Body:           json.RawMessage(`{"ok":true,"event":"orders.created"}`),
		Signature:      "abc123",
		State:          delivery.StatePending,
		MaxAttempts:    3,
	}
}

func TestSenderPerformCallback(t *testing.T) {
	var gotHeader http.Header
	var gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	sender := delivery.NewSender(5 * time.Second)
	res := sender.Perform(context.Background(), newCallbackJob(srv.URL))

	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Response != `{"received":true}` {
		t.Fatalf("unexpected response %q", res.Response)
	}
	if gotHeader.Get("x-hook-signature") != "abc123" {
		t.Fatalf("signature header = %q", gotHeader.Get("x-hook-signature"))
	}
	if gotHeader.Get("Content-Type") != "application/json" {
		t.Fatalf("content type = %q", gotHeader.Get("Content-Type"))
	}
	if gotHeader.Get("User-Agent") != "Herald/1.0" {
		t.Fatalf("user agent = %q", gotHeader.Get("User-Agent"))
	}
	if gotBody != `{"ok":true,"event":"orders.created"}` {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := delivery.NewSender(5*time.Second).Post(context.Background(), srv.URL, []byte(`{}`), nil)
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if res.Error == "" {
		t.Fatal("expected error message")
	}
}

func TestSenderCapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	res := delivery.NewSender(5*time.Second).Post(context.Background(), srv.URL, []byte(`{}`), nil)
	if len(res.Response) != 1024 {
		t.Fatalf("response length = %d, want 1024", len(res.Response))
	}
}

func TestSenderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := delivery.NewSender(50*time.Millisecond).Post(context.Background(), srv.URL, []byte(`{}`), nil)
	if res.OK() || res.Error == "" {
		t.Fatalf("expected timeout error, got %+v", res)
	}
}

func TestSenderHeadersAndEcho(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-hook-secret", r.Header.Get("x-hook-secret"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("x-hook-secret", "whsec_abc")
	res := delivery.NewSender(5*time.Second).Post(context.Background(), srv.URL, []byte(`{}`), h)
	if res.Header.Get("x-hook-secret") != "whsec_abc" {
		t.Fatalf("expected echoed header, got %v", res.Header)
	}
}

func TestSenderUnreachable(t *testing.T) {
	res := delivery.NewSender(time.Second).Post(context.Background(), "http://127.0.0.1:1/", []byte(`{}`), nil)
	if res.OK() || res.StatusCode != 0 || res.Error == "" {
		t.Fatalf("expected connection error, got %+v", res)
	}
}
