package main

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/hs-CN/remote-servo-controllor/internal/httputil"
)

func TestBuildPayload(t *testing.T) {
	tests := []struct {
		name    string
		degree  int
		raw     string
		want    string
		wantErr bool
	}{
		{"degree 90", 90, "", "90", false},
		{"degree 0", 0, "", "0", false},
		{"degree 180", 180, "", "180", false},
		{"raw payload", -1, "+90", "+90", false},
		{"raw wins over degree", 45, "junk", "junk", false},
		{"nothing given", -1, "", "", true},
		{"degree too large", 181, "", "", true},
		{"degree way out", 300, "", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildPayload(tc.degree, tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("buildPayload(%d, %q) expected error, got %q", tc.degree, tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildPayload(%d, %q) failed: %v", tc.degree, tc.raw, err)
			}
			if string(got) != tc.want {
				t.Errorf("buildPayload(%d, %q) = %q, want %q", tc.degree, tc.raw, got, tc.want)
			}
		})
	}
}

func TestMatchesTarget(t *testing.T) {
	tests := []struct {
		name       string
		wantAddr   string
		gotAddr    string
		localName  string
		hasService bool
		want       bool
	}{
		{"name match", "", "AA:BB:CC:DD:EE:FF", "BLE Lock", false, true},
		{"service match without name", "", "AA:BB:CC:DD:EE:FF", "", true, true},
		{"neither name nor service", "", "AA:BB:CC:DD:EE:FF", "Thermostat", false, false},
		{"address match", "aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF", "", false, true},
		{"address mismatch ignores name", "11:22:33:44:55:66", "AA:BB:CC:DD:EE:FF", "BLE Lock", true, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := matchesTarget(tc.wantAddr, tc.gotAddr, tc.localName, tc.hasService)
			if got != tc.want {
				t.Errorf("matchesTarget(%q, %q, %q, %t) = %t, want %t",
					tc.wantAddr, tc.gotAddr, tc.localName, tc.hasService, got, tc.want)
			}
		})
	}
}

func TestSendHTTP_Accepted(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddResponse(http.StatusOK, "Command accepted")

	if err := sendHTTP(client, "http://lock.local:8080", "90"); err != nil {
		t.Fatalf("sendHTTP failed: %v", err)
	}

	req := client.GetRequest(0)
	if req == nil {
		t.Fatal("Expected a recorded request")
	}
	if req.Method != http.MethodPost {
		t.Errorf("Expected POST, got %s", req.Method)
	}
	if got := req.URL.String(); got != "http://lock.local:8080/command" {
		t.Errorf("Expected command URL, got %q", got)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Errorf("Expected form content type, got %q", ct)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("Failed to read request body: %v", err)
	}
	if string(body) != "command=90" {
		t.Errorf("Expected form body %q, got %q", "command=90", body)
	}
}

func TestSendHTTP_TrailingSlash(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddResponse(http.StatusOK, "Command accepted")

	if err := sendHTTP(client, "http://lock.local:8080/", "90"); err != nil {
		t.Fatalf("sendHTTP failed: %v", err)
	}

	req := client.GetRequest(0)
	if got := req.URL.String(); got != "http://lock.local:8080/command" {
		t.Errorf("Expected single-slash command URL, got %q", got)
	}
}

func TestSendHTTP_Busy(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddResponse(http.StatusConflict, `{"error":"Lock is busy"}`)

	err := sendHTTP(client, "http://lock.local:8080", "90")
	if err == nil {
		t.Fatal("Expected error on 409")
	}
	if !strings.Contains(err.Error(), "busy") {
		t.Errorf("Expected busy error, got %q", err)
	}
}

func TestSendHTTP_ServerError(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddResponse(http.StatusInternalServerError, "boom")

	err := sendHTTP(client, "http://lock.local:8080", "90")
	if err == nil {
		t.Fatal("Expected error on 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected status in error, got %q", err)
	}
}

func TestSendHTTP_TransportError(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddErrorResponse(errors.New("connection refused"))

	err := sendHTTP(client, "http://lock.local:8080", "90")
	if err == nil {
		t.Fatal("Expected transport error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Expected transport error, got %q", err)
	}
}
