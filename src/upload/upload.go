// Package upload posts a PNG to an HTTP endpoint and interprets the reply.
//
// Two wire protocols are supported. HeaderAuth sends the raw PNG and carries
// credentials in the Authorization header. EmbeddedSecret speaks the legacy
// protocol: the body is the shared secret, a NUL byte, then the PNG.
package upload

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"screenshotr/src/config"
	"screenshotr/src/logutil"
	"screenshotr/src/screenshot"
)

const (
	maxResponseBytes = 64 << 10
	// Returned verbatim by the legacy server on a bad secret.
	notAuthorizedBody = "not authorized"
)

var (
	ErrAuthorizationFailed = errors.New("not authorized")
	ErrNothingToUpload     = errors.New("no image data to upload")
)

// TransportError reports that no response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// UnexpectedResponseError carries a reply that is neither a URL nor the
// authorization failure marker. Its message is the raw body.
type UnexpectedResponseError struct {
	Status int
	Body   string
}

func (e *UnexpectedResponseError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected empty response (HTTP %d)", e.Status)
	}
	return e.Body
}

// Result is either a URL or the error that prevented one.
type Result struct {
	URL string
	Err error
}

func Success(url string) Result { return Result{URL: url} }
func Failure(err error) Result  { return Result{Err: err} }
func (r Result) OK() bool       { return r.Err == nil }

func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Request is one image to upload. Data, when set, must already be PNG and
// takes precedence over Image.
type Request struct {
	Image image.Image
	Data  []byte
	Name  string
}

func (r Request) payload() ([]byte, error) {
	if len(r.Data) > 0 {
		return r.Data, nil
	}
	if r.Image == nil {
		return nil, ErrNothingToUpload
	}
	return screenshot.EncodePNG(r.Image)
}

// Uploader is implemented by both wire protocols.
type Uploader interface {
	Upload(ctx context.Context, req Request) Result
}

type Credentials struct {
	User     string
	Password string
}

// Config is fixed for the lifetime of an Uploader.
type Config struct {
	Endpoint           string
	Mode               string
	Credentials        Credentials
	Secret             string
	UseProxy           bool
	InsecureSkipVerify bool
	// Timeout bounds each call in addition to the caller's context.
	Timeout time.Duration
}

// FromConfig maps client configuration to an uploader configuration.
func FromConfig(c *config.Config) Config {
	return Config{
		Endpoint:           c.UploadURL,
		Mode:               c.UploadMode,
		Credentials:        Credentials{User: c.HTTPUser, Password: c.HTTPPassword},
		Secret:             c.UploadPassword,
		UseProxy:           c.UseProxy,
		InsecureSkipVerify: c.AllowInsecureTLS,
		Timeout:            time.Duration(c.UploadDeadlineSec) * time.Second,
	}
}

// New returns the Uploader for cfg.Mode.
func New(cfg Config) (Uploader, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, config.ErrConfigurationMissing
	}

	c := client{endpoint: cfg.Endpoint, timeout: cfg.Timeout, http: newHTTPClient(cfg)}
	switch cfg.Mode {
	case config.ModeSecret:
		if cfg.Secret == "" {
			return nil, fmt.Errorf("%w: secret upload mode requires a secret", config.ErrConfigurationMissing)
		}
		log.Printf("upload: embedded-secret mode, endpoint=%s secret=%s", cfg.Endpoint, logutil.Redact(cfg.Secret))
		return &EmbeddedSecret{client: c, secret: cfg.Secret}, nil
	case config.ModeHeaderAuth, "":
		if cfg.Credentials.User == "" || cfg.Credentials.Password == "" {
			log.Printf("upload: header-auth mode without credentials, endpoint=%s", cfg.Endpoint)
		} else {
			log.Printf("upload: header-auth mode, endpoint=%s user=%s password=%s",
				cfg.Endpoint, cfg.Credentials.User, logutil.Redact(cfg.Credentials.Password))
		}
		return &HeaderAuth{client: c, creds: cfg.Credentials}, nil
	default:
		return nil, fmt.Errorf("unknown upload mode %q", cfg.Mode)
	}
}

// environmentProxy is replaced in tests; the stdlib reads the proxy
// variables only once per process.
var environmentProxy = http.ProxyFromEnvironment

// proxyFor always honours the environment proxy. UseProxy additionally hands
// the configured credentials to a proxy whose URL carries none.
func proxyFor(cfg Config) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		u, err := environmentProxy(req)
		if err != nil || u == nil || u.User != nil || !cfg.UseProxy || cfg.Credentials.User == "" {
			return u, err
		}
		withCreds := *u
		withCreds.User = url.UserPassword(cfg.Credentials.User, cfg.Credentials.Password)
		return &withCreds, nil
	}
}

func newHTTPClient(cfg Config) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = proxyFor(cfg)
	if cfg.InsecureSkipVerify {
		log.Printf("WARNING: TLS certificate verification is DISABLED for %s", cfg.Endpoint)
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: tr}
}

type client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// post sends body and turns the exchange into a Result. There are no retries.
func (c *client) post(ctx context.Context, body []byte, prepare func(*http.Request)) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Failure(&TransportError{Err: fmt.Errorf("failed to create request: %w", err)})
	}
	prepare(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("upload: request failed after %v: %v", time.Since(start), err)
		return Failure(&TransportError{Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Failure(&TransportError{Err: fmt.Errorf("failed to read response: %w", err)})
	}
	log.Printf("upload: HTTP %d in %v, %d bytes: %s", resp.StatusCode, time.Since(start), len(data), logutil.Sanitize(string(data)))
	return interpret(resp.StatusCode, data)
}

// interpret applies the endpoint contract: a body starting with "http" is the
// public URL, the literal "not authorized" is a rejected credential, anything
// else is reported verbatim.
func interpret(status int, body []byte) Result {
	text := strings.TrimSpace(string(body))
	if text == notAuthorizedBody || status == http.StatusUnauthorized || status == http.StatusForbidden {
		return Failure(ErrAuthorizationFailed)
	}
	if status >= 200 && status < 300 && strings.HasPrefix(text, "http") {
		return Success(text)
	}
	return Failure(&UnexpectedResponseError{Status: status, Body: string(body)})
}

// HeaderAuth sends the PNG as the body and credentials as HTTP Basic auth.
// Without both a user and a password no Authorization header is sent.
type HeaderAuth struct {
	client
	creds Credentials
}

func (u *HeaderAuth) Upload(ctx context.Context, r Request) Result {
	data, err := r.payload()
	if err != nil {
		return Failure(err)
	}
	log.Printf("upload: sending %d bytes (%s)", len(data), r.Name)
	return u.post(ctx, data, func(req *http.Request) {
		req.Header.Set("Content-Type", "image/png")
		if u.creds.User != "" && u.creds.Password != "" {
			req.SetBasicAuth(u.creds.User, u.creds.Password)
		}
	})
}

// EmbeddedSecret prefixes the PNG with the shared secret and a NUL byte.
type EmbeddedSecret struct {
	client
	secret string
}

func (u *EmbeddedSecret) Upload(ctx context.Context, r Request) Result {
	data, err := r.payload()
	if err != nil {
		return Failure(err)
	}
	log.Printf("upload: sending %d bytes with embedded secret (%s)", len(data), r.Name)
	return u.post(ctx, EncodeSecretBody(u.secret, data), func(req *http.Request) {
		req.Header.Set("Content-Type", "application/x-httpd-php")
	})
}

// EncodeSecretBody builds secret ++ 0x00 ++ png.
func EncodeSecretBody(secret string, png []byte) []byte {
	body := make([]byte, 0, len(secret)+1+len(png))
	body = append(body, secret...)
	body = append(body, 0)
	return append(body, png...)
}
