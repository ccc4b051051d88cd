package parquetsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("parquetsqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "parquetsql API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	wait := fs.Duration("wait", 5*time.Second, "how long query waits for completion before returning")
	pageSize := fs.Int("page-size", 0, "rows per page for results (0 keeps the session's size)")
	raw := fs.Bool("raw", false, "results: return typed cell values instead of display text")
	interrupt := fs.Bool("interrupt", true, "cancel: also interrupt the engine")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout + *wait}
	}

	command := strings.TrimSpace(fs.Arg(0))
	operands := fs.Args()[1:]
	req, err := buildRequest(command, operands, requestFlags{
		wait:      *wait,
		pageSize:  *pageSize,
		raw:       *raw,
		interrupt: *interrupt,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

type requestFlags struct {
	wait      time.Duration
	pageSize  int
	raw       bool
	interrupt bool
}

func buildRequest(command string, operands []string, flags requestFlags) (request, error) {
	need := func(n int, usage string) error {
		if len(operands) < n {
			return fmt.Errorf("usage: parquetsqlctl %s", usage)
		}
		return nil
	}
	sessionPath := func(suffix string) string {
		return "/v1/sessions/" + url.PathEscape(operands[0]) + suffix
	}

	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/v1/ready"}, nil
	case "sessions":
		return request{method: http.MethodGet, path: "/v1/sessions"}, nil
	case "open":
		if err := need(1, "open PATH"); err != nil {
			return request{}, err
		}
		return request{method: http.MethodPost, path: "/v1/sessions", body: map[string]any{"path": operands[0]}}, nil
	case "close":
		if err := need(1, "close ID"); err != nil {
			return request{}, err
		}
		return request{method: http.MethodDelete, path: sessionPath("")}, nil
	case "tables":
		if err := need(1, "tables ID"); err != nil {
			return request{}, err
		}
		return request{method: http.MethodGet, path: sessionPath("/tables")}, nil
	case "query":
		if err := need(2, "query ID SQL"); err != nil {
			return request{}, err
		}
		body := map[string]any{
			"sql":     strings.Join(operands[1:], " "),
			"wait_ms": flags.wait.Milliseconds(),
		}
		return request{method: http.MethodPost, path: sessionPath("/query"), body: body}, nil
	case "status":
		if err := need(1, "status ID"); err != nil {
			return request{}, err
		}
		return request{method: http.MethodGet, path: sessionPath("/status")}, nil
	case "cancel":
		if err := need(1, "cancel ID"); err != nil {
			return request{}, err
		}
		return request{method: http.MethodPost, path: sessionPath("/cancel"), body: map[string]any{"interrupt": flags.interrupt}}, nil
	case "results":
		if err := need(1, "results ID [PAGE]"); err != nil {
			return request{}, err
		}
		query := url.Values{}
		if len(operands) > 1 {
			if _, err := strconv.Atoi(operands[1]); err != nil {
				return request{}, fmt.Errorf("invalid page %q", operands[1])
			}
			query.Set("page", operands[1])
		}
		if flags.pageSize > 0 {
			query.Set("page_size", strconv.Itoa(flags.pageSize))
		}
		if !flags.raw {
			query.Set("display", "true")
		}
		return request{method: http.MethodGet, path: sessionPath("/results"), query: query}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: parquetsqlctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health               GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  sessions             GET /v1/sessions")
	_, _ = fmt.Fprintln(w, "  open PATH            POST /v1/sessions")
	_, _ = fmt.Fprintln(w, "  close ID             DELETE /v1/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  tables ID            GET /v1/sessions/{id}/tables")
	_, _ = fmt.Fprintln(w, "  query ID SQL         POST /v1/sessions/{id}/query (waits up to -wait)")
	_, _ = fmt.Fprintln(w, "  status ID            GET /v1/sessions/{id}/status")
	_, _ = fmt.Fprintln(w, "  cancel ID            POST /v1/sessions/{id}/cancel")
	_, _ = fmt.Fprintln(w, "  results ID [PAGE]    GET /v1/sessions/{id}/results (PAGE is 0-based)")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
