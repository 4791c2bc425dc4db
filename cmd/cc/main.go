// Command cc is a standalone HTTP client for a ContextCache server. It
// speaks only the documented HTTP surface — no direct database or Redis
// access — and persists its configuration (base URL, API key, org id) at
// ~/.contextcache/config.json.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	exitOK = iota
	exitGeneric
	exitAuth
	exitValidation
	exitNotFound
	exitQuota
)

// clientConfig is persisted at ~/.contextcache/config.json, mode 0600.
type clientConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	OrgID   string `json:"org_id"`
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".contextcache", "config.json"), nil
}

func loadConfig() (clientConfig, error) {
	cfg := clientConfig{BaseURL: "http://localhost:8080"}
	path, err := configPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return applyEnv(cfg), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg clientConfig) clientConfig {
	if v := os.Getenv("CC_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("CC_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CC_ORG_ID"); v != "" {
		cfg.OrgID = v
	}
	return cfg
}

func saveConfig(cfg clientConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// apiClient issues requests against a running ContextCache server.
type apiClient struct {
	cfg    clientConfig
	http   *http.Client
	cookie string // sent as the Cookie header when non-empty; no command in this client sets it
}

func newAPIClient(cfg clientConfig) *apiClient {
	return &apiClient{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}}
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// A non-2xx response is returned as a *apiError so callers can map it to an
// exit code.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &apiError{status: resp.StatusCode, body: data}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// apiError wraps a non-2xx HTTP response; exitCode maps it to §6.3's exit
// code table.
type apiError struct {
	status int
	body   []byte
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, strings.TrimSpace(string(e.body)))
}

func (e *apiError) exitCode() int {
	switch e.status {
	case http.StatusUnauthorized:
		return exitAuth
	case http.StatusBadRequest:
		return exitValidation
	case http.StatusNotFound:
		return exitNotFound
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return exitQuota
	default:
		return exitGeneric
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitValidation
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitGeneric
	}
	client := newAPIClient(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, rest := args[0], args[1:]
	var runErr error

	switch cmd {
	case "health":
		runErr = cmdHealth(ctx, client)
	case "login":
		runErr = cmdLogin(ctx, client, rest)
	case "projects":
		runErr = cmdProjects(ctx, client, rest)
	case "mem":
		runErr = cmdMem(ctx, client, rest)
	case "recall":
		runErr = cmdRecall(ctx, client, rest)
	case "usage":
		runErr = cmdUsage(ctx, client)
	case "invites":
		runErr = cmdInvites(ctx, client, rest)
	case "waitlist":
		runErr = cmdWaitlist(ctx, client, rest)
	case "admin":
		runErr = cmdAdmin(rest)
	case "config":
		runErr = cmdConfig(cfg, rest)
	default:
		usage()
		return exitValidation
	}

	if runErr == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "error:", runErr)
	if apiErr, ok := runErr.(*apiError); ok {
		return apiErr.exitCode()
	}
	return exitGeneric
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: cc <command> [args]

commands:
  health
  login <email>
  projects list
  projects create <name>
  mem add <project-id> <type> <content>
  mem list <project-id>
  recall <project-id> <query>
  usage
  invites list|create|revoke
  waitlist list|approve|reject|join
  admin ...
  config set-base-url|set-api-key|set-org-id <value>`)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: encoding output:", err)
		return
	}
	fmt.Println(string(data))
}

func cmdHealth(ctx context.Context, c *apiClient) error {
	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func cmdLogin(ctx context.Context, c *apiClient, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cc login <email>")
	}
	var resp struct {
		Sent      bool   `json:"sent"`
		DebugLink string `json:"debug_link,omitempty"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/request-link", map[string]string{"email": args[0]}, &resp); err != nil {
		return err
	}
	if resp.DebugLink != "" {
		fmt.Println("login link (dev mode):", c.cfg.BaseURL+resp.DebugLink)
	} else {
		fmt.Println("a login link has been sent to", args[0])
	}
	return nil
}

func cmdProjects(ctx context.Context, c *apiClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cc projects {list|create}")
	}
	switch args[0] {
	case "list":
		var resp []map[string]any
		if err := c.do(ctx, http.MethodGet, "/projects", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	case "create":
		fs := flag.NewFlagSet("projects create", flag.ContinueOnError)
		orgID := fs.String("org-id", c.cfg.OrgID, "organization id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: cc projects create <name> [--org-id=...]")
		}
		body := map[string]string{"name": fs.Arg(0)}
		if *orgID != "" {
			body["org_id"] = *orgID
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/projects", body, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	default:
		return fmt.Errorf("usage: cc projects {list|create}")
	}
}

func cmdMem(ctx context.Context, c *apiClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cc mem {add|list}")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("mem add", flag.ContinueOnError)
		title := fs.String("title", "", "memory title")
		tags := fs.String("tags", "", "comma-separated tags")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 3 {
			return fmt.Errorf("usage: cc mem add <project-id> <type> <content> [--title=...] [--tags=a,b]")
		}
		body := map[string]any{
			"type":    fs.Arg(1),
			"content": fs.Arg(2),
		}
		if *title != "" {
			body["title"] = *title
		}
		if *tags != "" {
			body["tags"] = strings.Split(*tags, ",")
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/projects/"+fs.Arg(0)+"/memories", body, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	case "list":
		if len(args) != 2 {
			return fmt.Errorf("usage: cc mem list <project-id>")
		}
		var resp []map[string]any
		if err := c.do(ctx, http.MethodGet, "/projects/"+args[1]+"/memories", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	default:
		return fmt.Errorf("usage: cc mem {add|list}")
	}
}

func cmdRecall(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("recall", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "max items")
	format := fs.String("format", "text", "text or toon")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: cc recall <project-id> [query] [--limit=N] [--format=text|toon]")
	}
	projectID := fs.Arg(0)
	query := ""
	if fs.NArg() > 1 {
		query = strings.Join(fs.Args()[1:], " ")
	}

	path := fmt.Sprintf("/projects/%s/recall?query=%s&limit=%s&format=%s",
		projectID, urlEscape(query), strconv.Itoa(*limit), urlEscape(*format))

	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func cmdUsage(ctx context.Context, c *apiClient) error {
	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, "/me/usage", nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func cmdInvites(ctx context.Context, c *apiClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cc invites {list|create|revoke}")
	}
	switch args[0] {
	case "list":
		var resp []map[string]any
		if err := c.do(ctx, http.MethodGet, "/admin/invites", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	case "create":
		if len(args) != 2 {
			return fmt.Errorf("usage: cc invites create <email>")
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/admin/invites", map[string]string{"email": args[1]}, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	case "revoke":
		if len(args) != 2 {
			return fmt.Errorf("usage: cc invites revoke <invite-id>")
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/admin/invites/"+args[1]+"/revoke", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	default:
		return fmt.Errorf("usage: cc invites {list|create|revoke}")
	}
}

func cmdWaitlist(ctx context.Context, c *apiClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cc waitlist {list|approve|reject|join}")
	}
	switch args[0] {
	case "list":
		var resp []map[string]any
		if err := c.do(ctx, http.MethodGet, "/admin/waitlist", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	case "approve":
		if len(args) != 2 {
			return fmt.Errorf("usage: cc waitlist approve <entry-id>")
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/admin/waitlist/"+args[1]+"/approve", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	case "reject":
		if len(args) != 2 {
			return fmt.Errorf("usage: cc waitlist reject <entry-id>")
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/admin/waitlist/"+args[1]+"/reject", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	case "join":
		if len(args) != 2 {
			return fmt.Errorf("usage: cc waitlist join <email>")
		}
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/waitlist/join", map[string]string{"email": args[1]}, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	default:
		return fmt.Errorf("usage: cc waitlist {list|approve|reject|join}")
	}
}

// cmdAdmin covers only the admin surface the server actually exposes
// (invites and waitlist management, already reachable via their own
// top-level verbs). "users", "set-unlimited", "stats", and "recall-logs"
// have no backing endpoint — an admin dashboard is an explicit non-goal —
// so they report unsupported rather than silently no-op.
func cmdAdmin(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cc admin {users|set-unlimited|stats|recall-logs}")
	}
	switch args[0] {
	case "users", "set-unlimited", "stats", "recall-logs":
		return fmt.Errorf("cc admin %s: not supported by this server (use 'cc invites' / 'cc waitlist' for admin actions)", args[0])
	default:
		return fmt.Errorf("usage: cc admin {users|set-unlimited|stats|recall-logs}")
	}
}

func urlEscape(s string) string {
	r := strings.NewReplacer(" ", "%20", "&", "%26", "#", "%23")
	return r.Replace(s)
}

// cmdConfig persists base-url/api-key/org-id to ~/.contextcache/config.json
// so later invocations don't need the CC_* environment variables set.
func cmdConfig(cfg clientConfig, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: cc config {set-base-url|set-api-key|set-org-id} <value>")
	}
	switch args[0] {
	case "set-base-url":
		cfg.BaseURL = args[1]
	case "set-api-key":
		cfg.APIKey = args[1]
	case "set-org-id":
		cfg.OrgID = args[1]
	default:
		return fmt.Errorf("usage: cc config {set-base-url|set-api-key|set-org-id} <value>")
	}
	return saveConfig(cfg)
}
