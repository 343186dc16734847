package cmd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/roboforge/roboforge/internal/config"
	"github.com/roboforge/roboforge/internal/output"
)

var (
	connectivityTimeout   time.Duration
	connectivityQuiet     bool
	connectivityOutputRaw string
)

type connectivityReport struct {
	Version     string             `json:"version,omitempty"`
	Timestamp   string             `json:"timestamp"`
	Environment connectivityEnv    `json:"environment"`
	Targets     []targetReport     `json:"targets"`
	Summary     connectivitySummary `json:"summary"`
}

type targetReport struct {
	Name          string              `json:"name"`
	URL           string              `json:"url"`
	Host          string              `json:"host"`
	Port          int                 `json:"port"`
	NoProxyMatch  bool                `json:"no_proxy_matches_host,omitempty"`
	CredentialSet bool                `json:"credential_set"`
	Checks        []connectivityCheck `json:"checks"`
	OK            bool                `json:"ok"`
	FailureLayer  string              `json:"failure_layer,omitempty"`
	Class         string              `json:"classification"`
	Hints         []string            `json:"hints,omitempty"`
}

type connectivityEnv struct {
	HTTPProxySet  bool `json:"http_proxy_set"`
	HTTPSProxySet bool `json:"https_proxy_set"`
	NoProxySet    bool `json:"no_proxy_set"`
}

type connectivityCheck struct {
	Name      string               `json:"name"`
	OK        bool                 `json:"ok,omitempty"`
	Skipped   bool                 `json:"skipped,omitempty"`
	LatencyMS int64                `json:"latency_ms,omitempty"`
	Details   map[string]any       `json:"details,omitempty"`
	Error     *connectivityErrInfo `json:"error,omitempty"`
}

type connectivityErrInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type connectivitySummary struct {
	OK     bool     `json:"ok"`
	Failed []string `json:"failed,omitempty"`
}

// connectivityTarget is one upstream to probe. auth runs after the network
// layers succeed.
type connectivityTarget struct {
	name          string
	rawURL        string
	credentialSet bool
	auth          func(ctx context.Context, timeout time.Duration) connectivityCheck
}

var doctorConnectivityCmd = &cobra.Command{
	Use:   "connectivity [openai|nexar]",
	Short: "Diagnose upstream reachability and auth",
	Long: `Runs layered DNS, TCP, TLS and authenticated HTTP checks against the OpenAI
API and the Nexar identity server. Without an argument both are checked.

The OpenAI probe lists models and the Nexar probe fetches a client-credentials
token; neither spends generation tokens.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"openai", "nexar"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		format, err := output.ParseFormat(connectivityOutputRaw)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format for connectivity: %s", format)
		}

		targets := connectivityTargets(cfg)
		if len(args) == 1 {
			targets, err = selectTarget(targets, args[0])
			if err != nil {
				return err
			}
		}

		report := runConnectivity(cmd.Context(), targets, connectivityTimeout)

		if !connectivityQuiet {
			if format == output.FormatJSON {
				payload, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(payload)); err != nil {
					return err
				}
			} else {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), renderConnectivityReport(report))
			}
		}

		if !report.Summary.OK {
			return fmt.Errorf("connectivity check failed: %s", strings.Join(report.Summary.Failed, ", "))
		}
		return nil
	},
}

func connectivityTargets(cfg *config.Config) []connectivityTarget {
	baseURL := cfg.AILink.BaseURL
	apiKey := cfg.AILink.APIKey
	parts := cfg.Parts
	return []connectivityTarget{
		{
			name:          "openai",
			rawURL:        baseURL,
			credentialSet: strings.TrimSpace(apiKey) != "",
			auth: func(ctx context.Context, timeout time.Duration) connectivityCheck {
				return runModelsAuthCheck(ctx, baseURL, apiKey, timeout)
			},
		},
		{
			name:          "nexar",
			rawURL:        parts.TokenURL,
			credentialSet: parts.ClientID != "" && parts.ClientSecret != "",
			auth: func(ctx context.Context, timeout time.Duration) connectivityCheck {
				return runTokenAuthCheck(ctx, parts.TokenURL, parts.ClientID, parts.ClientSecret, timeout)
			},
		},
	}
}

func selectTarget(targets []connectivityTarget, name string) ([]connectivityTarget, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range targets {
		if t.name == name {
			return []connectivityTarget{t}, nil
		}
	}
	return nil, fmt.Errorf("unknown target %q (want openai or nexar)", name)
}

func runConnectivity(ctx context.Context, targets []connectivityTarget, timeout time.Duration) *connectivityReport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	report := &connectivityReport{
		Version:     versionInfo.Version,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Environment: collectProxyEnv(),
		Summary:     connectivitySummary{OK: true},
	}
	for _, t := range targets {
		tr := probeTarget(ctx, t, timeout)
		classifyTarget(&tr, report.Environment)
		if !tr.OK {
			report.Summary.OK = false
			report.Summary.Failed = append(report.Summary.Failed, tr.Name+"/"+tr.Class)
		}
		report.Targets = append(report.Targets, tr)
	}
	return report
}

// probeTarget runs the layers in order and stops at the first failure.
func probeTarget(ctx context.Context, t connectivityTarget, timeout time.Duration) targetReport {
	tr := targetReport{Name: t.name, URL: t.rawURL, CredentialSet: t.credentialSet}

	host, port, err := hostPort(t.rawURL)
	if err != nil {
		tr.Checks = append(tr.Checks, connectivityCheck{Name: "url", Error: &connectivityErrInfo{Code: "BAD_URL", Message: err.Error()}})
		return tr
	}
	tr.Host, tr.Port = host, port
	tr.NoProxyMatch = noProxyMatchesHost(firstEnv("NO_PROXY", "no_proxy"), host)

	dns := runDNSCheck(ctx, host, timeout)
	tr.Checks = append(tr.Checks, dns)
	if !dns.OK {
		return tr
	}

	tcp, conn := runTCPCheck(ctx, host, port, timeout)
	tr.Checks = append(tr.Checks, tcp)
	if !tcp.OK {
		return tr
	}

	tlsCheck := runTLSCheck(ctx, host, conn, timeout)
	tr.Checks = append(tr.Checks, tlsCheck)
	if !tlsCheck.OK {
		return tr
	}

	tr.Checks = append(tr.Checks, t.auth(ctx, timeout))
	return tr
}

func hostPort(rawURL string) (string, int, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", 0, err
	}
	host := strings.TrimSpace(u.Hostname())
	if host == "" {
		return "", 0, fmt.Errorf("url %q has no host", rawURL)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port %q", p)
		}
		return host, port, nil
	}
	if strings.EqualFold(u.Scheme, "http") {
		return host, 80, nil
	}
	return host, 443, nil
}

func runDNSCheck(ctx context.Context, host string, timeout time.Duration) connectivityCheck {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	check := connectivityCheck{Name: "dns", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		check.Error = &connectivityErrInfo{Code: "DNS_ERROR", Message: err.Error()}
		return check
	}

	resolved := make([]string, 0, len(ips))
	for _, ip := range ips {
		resolved = append(resolved, ip.IP.String())
	}
	check.OK = true
	check.Details = map[string]any{"resolved_ips": resolved}
	return check
}

func runTCPCheck(ctx context.Context, host string, port int, timeout time.Duration) (connectivityCheck, net.Conn) {
	start := time.Now()
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	check := connectivityCheck{Name: "tcp", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		check.Error = &connectivityErrInfo{Code: "TCP_ERROR", Message: err.Error()}
		return check, nil
	}
	check.OK = true
	check.Details = map[string]any{"remote_addr": conn.RemoteAddr().String()}
	return check, conn
}

// runTLSCheck handshakes over conn and closes it.
func runTLSCheck(ctx context.Context, host string, conn net.Conn, timeout time.Duration) connectivityCheck {
	check := connectivityCheck{Name: "tls"}
	if conn == nil {
		check.Skipped = true
		return check
	}

	start := time.Now()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	client := tls.Client(conn, &tls.Config{ServerName: host})
	defer func() { _ = client.Close() }()
	err := client.HandshakeContext(ctx)
	check.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		check.Error = &connectivityErrInfo{Code: "TLS_ERROR", Message: err.Error()}
		return check
	}

	state := client.ConnectionState()
	check.OK = true
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		serverMatch := leaf.VerifyHostname(host) == nil
		check.Details = map[string]any{
			"tls_version":         tlsVersionName(state.Version),
			"cipher_suite":        tls.CipherSuiteName(state.CipherSuite),
			"cert_subject":        leaf.Subject.CommonName,
			"cert_issuer":         leaf.Issuer.CommonName,
			"cert_not_after":      leaf.NotAfter.UTC().Format(time.RFC3339),
			"intercept_suspected": !serverMatch || looksLikeIntercept(leaf),
			"server_name_match":   serverMatch,
		}
	}
	return check
}

// runModelsAuthCheck lists models with the bearer key.
func runModelsAuthCheck(ctx context.Context, baseURL, apiKey string, timeout time.Duration) connectivityCheck {
	check := connectivityCheck{Name: "http_auth"}
	if strings.TrimSpace(apiKey) == "" {
		check.Skipped = true
		check.Error = &connectivityErrInfo{Code: "NO_CREDENTIALS", Message: "no OpenAI API key configured"}
		return check
	}

	modelsURL := strings.TrimRight(baseURL, "/") + "/models"
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		check.Error = &connectivityErrInfo{Code: "HTTP_REQUEST_ERROR", Message: err.Error()}
		return check
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	check.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		check.Error = &connectivityErrInfo{Code: "HTTP_ERROR", Message: err.Error()}
		return check
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 32768))
	check.Details = map[string]any{"url": modelsURL, "status_code": resp.StatusCode}
	if n := countModels(body); n > 0 {
		check.Details["models"] = n
	}
	applyStatus(&check, resp.StatusCode, resp.Status)
	return check
}

// runTokenAuthCheck performs the client-credentials exchange parts search uses.
func runTokenAuthCheck(ctx context.Context, tokenURL, clientID, clientSecret string, timeout time.Duration) connectivityCheck {
	check := connectivityCheck{Name: "http_auth"}
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		check.Skipped = true
		check.Error = &connectivityErrInfo{Code: "NO_CREDENTIALS", Message: "NEXAR_CLIENT_ID or NEXAR_CLIENT_SECRET not configured"}
		return check
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})

	cc := &clientcredentials.Config{ClientID: clientID, ClientSecret: clientSecret, TokenURL: tokenURL}
	start := time.Now()
	token, err := cc.Token(ctx)
	check.LatencyMS = time.Since(start).Milliseconds()
	check.Details = map[string]any{"url": tokenURL}
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			check.Details["status_code"] = re.Response.StatusCode
			applyStatus(&check, re.Response.StatusCode, re.Response.Status)
			if re.ErrorCode == "invalid_client" {
				check.Error = &connectivityErrInfo{Code: "AUTH_ERROR", Message: re.ErrorCode}
			}
			return check
		}
		check.Error = &connectivityErrInfo{Code: "HTTP_ERROR", Message: err.Error()}
		return check
	}
	check.OK = true
	check.Details["status_code"] = http.StatusOK
	check.Details["expires_in_s"] = int(time.Until(token.Expiry).Seconds())
	return check
}

func applyStatus(check *connectivityCheck, code int, status string) {
	switch {
	case code == http.StatusOK:
		check.OK = true
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusBadRequest:
		check.Error = &connectivityErrInfo{Code: "AUTH_ERROR", Message: status}
	case code == http.StatusTooManyRequests:
		check.Error = &connectivityErrInfo{Code: "RATE_LIMITED", Message: status}
	case code >= 500:
		check.Error = &connectivityErrInfo{Code: "UPSTREAM_UNAVAILABLE", Message: status}
	default:
		check.Error = &connectivityErrInfo{Code: "HTTP_STATUS_ERROR", Message: status}
	}
}

func countModels(body []byte) int {
	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}
	return len(payload.Data)
}

func renderConnectivityReport(report *connectivityReport) string {
	var sb strings.Builder
	for _, tr := range report.Targets {
		status := "OK"
		if !tr.OK {
			status = "FAIL"
		}
		lines := []string{
			fmt.Sprintf("%s connectivity (%s)", tr.Name, status),
			"",
			fmt.Sprintf("url:    %s", tr.URL),
			fmt.Sprintf("cred:   %s", map[bool]string{true: "configured", false: "missing"}[tr.CredentialSet]),
			"",
		}
		for _, chk := range tr.Checks {
			label := chk.Name + ":"
			if chk.Skipped {
				msg := "skipped"
				if chk.Error != nil {
					msg += " (" + chk.Error.Code + ")"
				}
				lines = append(lines, fmt.Sprintf("%-10s %s", label, msg))
				continue
			}
			symbol, msg := "✅", "ok"
			if !chk.OK {
				symbol = "❌"
				if chk.Error != nil {
					msg = chk.Error.Code
				}
			}
			suffix := ""
			if chk.LatencyMS > 0 {
				suffix = fmt.Sprintf(" (%dms)", chk.LatencyMS)
			}
			lines = append(lines, fmt.Sprintf("%-10s %s %s%s", label, symbol, msg, suffix))
		}
		if len(tr.Hints) > 0 {
			lines = append(lines, "", "hints:")
			for _, hint := range tr.Hints {
				lines = append(lines, "- "+hint)
			}
		}
		sb.WriteString(ascii.DrawBox(strings.Join(lines, "\n"), 0))
	}
	return sb.String()
}

func collectProxyEnv() connectivityEnv {
	return connectivityEnv{
		HTTPProxySet:  envSet("HTTP_PROXY") || envSet("http_proxy"),
		HTTPSProxySet: envSet("HTTPS_PROXY") || envSet("https_proxy"),
		NoProxySet:    strings.TrimSpace(firstEnv("NO_PROXY", "no_proxy")) != "",
	}
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
	}
	return ""
}

func noProxyMatchesHost(noProxy string, host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}

	for _, part := range strings.Split(noProxy, ",") {
		entry := strings.ToLower(strings.TrimSpace(part))
		if entry == "" {
			continue
		}
		if entry == host || entry == "*" {
			return true
		}
		entry = strings.TrimPrefix(entry, ".")
		if entry != "" && strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func looksLikeIntercept(cert *x509.Certificate) bool {
	if cert == nil {
		return false
	}

	issuer := strings.ToLower(strings.TrimSpace(cert.Issuer.CommonName))
	subject := strings.ToLower(strings.TrimSpace(cert.Subject.CommonName))

	keywords := []string{"zscaler", "netskope", "bluecoat", "fortinet", "proxy", "corporate", "inspection"}
	for _, kw := range keywords {
		if strings.Contains(issuer, kw) || strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}

func tlsVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS13:
		return "TLS1.3"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS10:
		return "TLS1.0"
	default:
		return fmt.Sprintf("0x%x", version)
	}
}

// classifyTarget sets OK, the failing layer and operator hints on tr.
func classifyTarget(tr *targetReport, env connectivityEnv) {
	tr.OK = true
	tr.Class = "ok"
	for _, chk := range tr.Checks {
		if chk.OK {
			continue
		}
		tr.OK = false
		tr.FailureLayer = chk.Name
		break
	}
	if tr.OK {
		return
	}

	if env.HTTPProxySet || env.HTTPSProxySet {
		tr.Hints = append(tr.Hints, "Proxy environment variables are set; a corporate proxy may be intercepting or denying requests")
		if !tr.NoProxyMatch {
			tr.Hints = append(tr.Hints, "Consider adding "+tr.Host+" to NO_PROXY if proxying breaks TLS")
		}
	}

	switch tr.FailureLayer {
	case "url":
		tr.Class = "misconfigured"
		tr.Hints = append(tr.Hints, "The configured URL cannot be parsed")
	case "dns":
		tr.Class = "dns_failure"
		tr.Hints = append(tr.Hints, "DNS resolution failed; check VPN/DNS configuration")
	case "tcp":
		tr.Class = "network_blocked"
		tr.Hints = append(tr.Hints, "TCP connection failed; VPN/firewall may be blocking outbound connections")
	case "tls":
		tr.Class = "tls_failure"
		tr.Hints = append(tr.Hints, "TLS handshake failed; check proxy/VPN interception or certificates")
	case "http_auth":
		tr.Class = "http_error"
		last := tr.Checks[len(tr.Checks)-1]
		if last.Error == nil {
			return
		}
		switch last.Error.Code {
		case "NO_CREDENTIALS":
			tr.Class = "misconfigured"
			tr.Hints = append(tr.Hints, last.Error.Message)
		case "AUTH_ERROR":
			tr.Class = "auth_invalid"
			tr.Hints = append(tr.Hints, "Credentials rejected; verify the key or client id/secret")
		case "RATE_LIMITED":
			tr.Class = "rate_limited"
			tr.Hints = append(tr.Hints, "Upstream rate limited the probe; retry later")
		case "UPSTREAM_UNAVAILABLE":
			tr.Class = "upstream_unavailable"
			tr.Hints = append(tr.Hints, "Upstream returned 5xx; retry later")
		}
	}
}

func init() {
	doctorCmd.AddCommand(doctorConnectivityCmd)

	doctorConnectivityCmd.Flags().DurationVar(&connectivityTimeout, "timeout", 10*time.Second, "Timeout per step (e.g. 10s)")
	doctorConnectivityCmd.Flags().BoolVar(&connectivityQuiet, "quiet", false, "Exit code only")
	doctorConnectivityCmd.Flags().StringVar(&connectivityOutputRaw, "output", string(output.FormatTable), "Output format: table|json")
}
