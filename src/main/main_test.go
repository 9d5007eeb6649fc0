package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"screenshotr/src/singleinstance"
)

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Normalizes long single dash flags",
			in:   []string{"screenshotr", "-run-once", "-env-path", "/tmp/.env"},
			out:  []string{"screenshotr", "--run-once", "--env-path", "/tmp/.env"},
		},
		{
			name: "Normalizes equals form",
			in:   []string{"screenshotr", "-run-once-std=true", "-env-path=/tmp/.env"},
			out:  []string{"screenshotr", "--run-once-std=true", "--env-path=/tmp/.env"},
		},
		{
			name: "Leaves other flags unchanged",
			in:   []string{"screenshotr", "--run-once", "--other", "-h"},
			out:  []string{"screenshotr", "--run-once", "--other", "-h"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeLegacyArgs(tt.in)
			if len(got) != len(tt.out) {
				t.Fatalf("Expected len=%d, got %d", len(tt.out), len(got))
			}
			for i := range got {
				if got[i] != tt.out[i] {
					t.Fatalf("Expected arg[%d]=%q, got %q", i, tt.out[i], got[i])
				}
			}
		})
	}
}

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--run-once-std", "--env-path", "/tmp/.env"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if !opts.runOnceStd || opts.runOnce {
		t.Fatalf("unexpected flags %+v", opts)
	}
	if opts.envPath != "/tmp/.env" {
		t.Fatalf("Expected envPath=/tmp/.env, got %q", opts.envPath)
	}
}

type fakeClient struct {
	delegated bool
	url       string
	err       error
	called    bool
	stdout    bool
}

func (f *fakeClient) TryRunOnce(ctx context.Context, outputToStdout bool) (bool, string, error) {
	f.called = true
	f.stdout = outputToStdout
	return f.delegated, f.url, f.err
}

func run(t *testing.T, client *fakeClient, stdout bool) (fallbackCalled bool, out string, err error) {
	t.Helper()
	var buf bytes.Buffer
	err = handleRunOnceWithDelegation(context.Background(), stdout, &buf, client, func() error {
		fallbackCalled = true
		return nil
	})
	if !client.called {
		t.Fatal("Expected client.TryRunOnce to be called")
	}
	return fallbackCalled, buf.String(), err
}

func TestHandleRunOnceWithDelegation_Delegated(t *testing.T) {
	client := &fakeClient{delegated: true, url: "http://host/img3.png"}
	fallback, out, err := run(t, client, true)

	if err != nil || fallback {
		t.Fatalf("err=%v fallback=%v", err, fallback)
	}
	if !client.stdout || out != "http://host/img3.png\n" {
		t.Fatalf("stdout=%v out=%q", client.stdout, out)
	}
}

func TestHandleRunOnceWithDelegation_ClipboardModePrintsNothing(t *testing.T) {
	_, out, err := run(t, &fakeClient{delegated: true, url: "http://host/img3.png"}, false)
	if err != nil || out != "" {
		t.Fatalf("err=%v out=%q", err, out)
	}
}

func TestHandleRunOnceWithDelegation_NoResidentFallback(t *testing.T) {
	fallback, _, err := run(t, &fakeClient{}, false)
	if err != nil || !fallback {
		t.Fatalf("Expected fallback when no resident is delegated (err=%v)", err)
	}
}

func TestHandleRunOnceWithDelegation_DelegationErrorFallback(t *testing.T) {
	fallback, _, err := run(t, &fakeClient{err: errors.New("connection refused")}, false)
	if err != nil || !fallback {
		t.Fatalf("Expected fallback when delegation could not start (err=%v)", err)
	}
}

func TestHandleRunOnceWithDelegation_ResidentError(t *testing.T) {
	fallback, _, err := run(t, &fakeClient{delegated: true, err: errors.New("Busy, please retry")}, false)
	if fallback {
		t.Fatal("Did not expect fallback once the resident accepted the request")
	}
	if err == nil || err.Error() != "Busy, please retry" {
		t.Fatalf("err=%v", err)
	}
}

func TestHandleRunOnceWithDelegation_Cancelled(t *testing.T) {
	fallback, out, err := run(t, &fakeClient{delegated: true, err: singleinstance.ErrCancelled}, true)
	if err != nil || fallback || out != "" {
		t.Fatalf("cancel must be silent: err=%v fallback=%v out=%q", err, fallback, out)
	}
}
