package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"screenshotr/src/capture"
	"screenshotr/src/screenshot"
)

// isolateEnv clears every key the client configuration reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"UPLOAD_URL", "UPLOAD_PASSWORD", "HTTP_USER", "HTTP_PASSWORD", "UPLOAD_MODE",
		"USE_PROXY", "ALLOW_INSECURE_TLS", "CONFIRM_UPLOAD", "UPLOAD_DEADLINE_SEC", "SCREENSHOTR_ENV"} {
		t.Setenv(k, "")
	}
}

func writePNG(t *testing.T) (string, []byte) {
	t.Helper()
	data, err := screenshot.EncodePNG(image.NewRGBA(image.Rect(0, 0, 3, 3)))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(append(args, "--env-path", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func uploadServer(t *testing.T, reply string, got *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			*got = body
		}
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUploadFile(t *testing.T) {
	isolateEnv(t)
	path, data := writePNG(t)
	var got []byte
	srv := uploadServer(t, "http://host/img5.png", &got)

	out, err := execute(t, nil, "--file", path, "--url", srv.URL)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "http://host/img5.png\n" {
		t.Errorf("stdout = %q", out)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("server received %d bytes, want the PNG file", len(got))
	}
}

func TestUploadStdinJSON(t *testing.T) {
	isolateEnv(t)
	_, data := writePNG(t)
	srv := uploadServer(t, "https://host/img6.png", nil)

	out, err := execute(t, bytes.NewReader(data), "--file", "-", "--url", srv.URL, "--json")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var res UploadResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("bad JSON %q: %v", out, err)
	}
	if res.URL != "https://host/img6.png" || res.Source != "stdin" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestUploadSecretMode(t *testing.T) {
	isolateEnv(t)
	t.Setenv("UPLOAD_PASSWORD", "hunter2")
	path, data := writePNG(t)
	var got []byte
	srv := uploadServer(t, "http://host/img7.png", &got)

	if _, err := execute(t, nil, "--file", path, "--url", srv.URL); err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := append([]byte("hunter2\x00"), data...)
	if !bytes.Equal(got, want) {
		t.Errorf("secret body not embedded")
	}
}

func TestUploadServerRefuses(t *testing.T) {
	isolateEnv(t)
	path, _ := writePNG(t)
	srv := uploadServer(t, "not authorized", nil)

	out, err := execute(t, nil, "--file", path, "--url", srv.URL)
	if err == nil {
		t.Fatal("expected an error")
	}
	if out != "" {
		t.Errorf("nothing should be printed on failure, got %q", out)
	}
}

func TestMissingConfiguration(t *testing.T) {
	isolateEnv(t)
	path, _ := writePNG(t)
	_, err := execute(t, nil, "--file", path)
	if err == nil || !strings.Contains(err.Error(), "no upload url") {
		t.Fatalf("err = %v", err)
	}
}

func TestInputSelection(t *testing.T) {
	isolateEnv(t)
	if _, err := execute(t, nil, "--url", "http://x"); err == nil {
		t.Error("expected error without --file or --clipboard")
	}
	if _, err := execute(t, nil, "--url", "http://x", "--file", "a.png", "--clipboard"); err == nil {
		t.Error("expected error for both inputs")
	}
}

func TestPNGValidation(t *testing.T) {
	_, png := writePNG(t)
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"valid", png, false},
		{"empty", nil, true},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0}, true},
		{"too large", append(append([]byte{}, png[:8]...), make([]byte, maxFileSize)...), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validatePNG(tt.data); (err != nil) != tt.wantErr {
				t.Errorf("validatePNG() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPromptDecision(t *testing.T) {
	rect := capture.Rectangle{End: capture.Point{X: 4, Y: 4}}
	tests := []struct {
		input string
		want  capture.Decision
	}{
		{"y\n", capture.Accept},
		{"YES\n", capture.Accept},
		{"n\n", capture.Discard},
		{"r\n", capture.Retry},
		{"maybe\nr\n", capture.Retry},
		{"y", capture.Accept},
		{"", capture.Discard},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := promptDecision(strings.NewReader(tt.input), &out)(context.Background(), rect)
		if err != nil || got != tt.want {
			t.Errorf("input %q: got %v, %v; want %v", tt.input, got, err, tt.want)
		}
		if !strings.Contains(out.String(), "[y]es/[n]o/[r]etry") {
			t.Errorf("prompt missing: %q", out.String())
		}
	}
}

func TestNormalizeLegacyArgs(t *testing.T) {
	got := normalizeLegacyArgs([]string{"cli", "-file", "a.png", "-json", "-url=http://x", "-v", "--verbose"})
	want := []string{"cli", "--file", "a.png", "--json", "--url=http://x", "-v", "--verbose"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("got %v, want %v", got, want)
	}
}
