package common_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/studyplan/common"
)

func TestNewHttpClient(t *testing.T) {
	client := common.NewHttpClient("MyUserAgent", &http.Client{}, 0)
	if client == nil {
		t.Fatal("expected non-nil HttpClient")
	}
	if common.NewHttpClient("", nil, time.Second) == nil {
		t.Fatal("expected non-nil HttpClient for nil base")
	}
}

func TestHttpClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestUserAgent" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "wrong user-agent")
			return
		}
		fmt.Fprint(w, "hello world")
	}))
	defer ts.Close()

	hc := common.NewHttpClient("TestUserAgent", &http.Client{}, 0)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "hello world" {
		t.Errorf("unexpected response: %d %s", resp.StatusCode, string(body))
	}
	hc.CloseIdleConnections()
}

func TestHttpClient_DefaultUserAgent(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	hc := common.NewHttpClient("", nil, 0)
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := hc.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got != common.DefaultUserAgent {
		t.Errorf("expected %q, got %q", common.DefaultUserAgent, got)
	}
}

func TestHTTPError(t *testing.T) {
	var err error = &common.HTTPError{StatusCode: http.StatusNotFound, Body: []byte("missing")}

	var httpErr *common.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatal("expected errors.As to match *HTTPError")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "missing") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
