package mail

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExchangeAuthCode(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt-123","expires_in":3599}`))
	}))
	defer srv.Close()

	tok, err := exchangeAuthCode(context.Background(), srv.Client(), srv.URL,
		"cid", "csecret", "the-code", "http://127.0.0.1:9/callback")
	if err != nil {
		t.Fatalf("exchangeAuthCode() error = %v", err)
	}
	if tok != "rt-123" {
		t.Errorf("refresh token = %q, want %q", tok, "rt-123")
	}

	want := map[string]string{
		"client_id":     "cid",
		"client_secret": "csecret",
		"code":          "the-code",
		"grant_type":    "authorization_code",
		"redirect_uri":  "http://127.0.0.1:9/callback",
	}
	for k, v := range want {
		if gotForm[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, gotForm[k], v)
		}
	}
}

func TestExchangeAuthCode_MissingRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","expires_in":3599}`))
	}))
	defer srv.Close()

	_, err := exchangeAuthCode(context.Background(), srv.Client(), srv.URL, "cid", "cs", "code", "uri")
	if err == nil {
		t.Fatal("exchangeAuthCode() error = nil, want error when no refresh token is granted")
	}
	if !strings.Contains(err.Error(), "no refresh token") {
		t.Errorf("error = %v, want mention of the missing refresh token", err)
	}
}

func TestExchangeAuthCode_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := exchangeAuthCode(context.Background(), srv.Client(), srv.URL, "cid", "cs", "code", "uri")
	if err == nil {
		t.Fatal("exchangeAuthCode() error = nil, want error on non-200 status")
	}
}

func TestWaitForCode_DeliversCode(t *testing.T) {
	ln := newLocalListener(t)
	done := make(chan struct{})
	var code string
	var err error
	go func() {
		defer close(done)
		code, err = waitForCode(context.Background(), ln, "s-1")
	}()

	resp := getWhenReady(t, "http://"+ln.Addr().String()+"/callback?state=s-1&code=abc")
	resp.Body.Close()
	<-done

	if err != nil {
		t.Fatalf("waitForCode() error = %v", err)
	}
	if code != "abc" {
		t.Errorf("code = %q, want %q", code, "abc")
	}
}

func TestWaitForCode_RejectsWrongState(t *testing.T) {
	ln := newLocalListener(t)
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = waitForCode(context.Background(), ln, "s-1")
	}()

	resp := getWhenReady(t, "http://"+ln.Addr().String()+"/callback?state=wrong&code=abc")
	resp.Body.Close()
	<-done

	if err == nil {
		t.Fatal("waitForCode() error = nil, want error on state mismatch")
	}
}

func newLocalListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func getWhenReady(t *testing.T, url string) *http.Response {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("callback server never became reachable: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
