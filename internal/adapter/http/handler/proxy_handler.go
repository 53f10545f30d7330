package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"caparica-client/internal/adapter/http/middleware"
	"caparica-client/pkg/apperror"
	"caparica-client/pkg/metrics"
	"caparica-client/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// signedHeaderPrefix matches the default signing headers in canonical form.
const signedHeaderPrefix = "X-Caparica-"

// Hop-by-hop headers are meaningful only for a single connection and are
// never forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyConfig configures a ProxyHandler.
type ProxyConfig struct {
	// UpstreamURL is the base URL requests are forwarded to. Its path is
	// prepended to the inbound path.
	UpstreamURL string
	// Timeout bounds one upstream round trip, signing included. Zero means
	// no limit beyond the inbound request's context.
	Timeout time.Duration
	// Transport signs and sends the outbound request.
	Transport http.RoundTripper
	// SignedHeaders are the configured signing header names. Inbound
	// copies of them are dropped so only the signer sets them.
	SignedHeaders []string
	Metrics       *metrics.ProxyMetrics
	Logger        zerolog.Logger
}

// ProxyHandler forwards every request it receives to the upstream API
// through the signing transport.
type ProxyHandler struct {
	client   *http.Client
	upstream *url.URL
	timeout  time.Duration
	strip    map[string]struct{}
	metrics  *metrics.ProxyMetrics
	log      zerolog.Logger
}

// NewProxyHandler validates the upstream URL and builds the handler.
func NewProxyHandler(cfg ProxyConfig) (*ProxyHandler, error) {
	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream url: %w", err)
	}
	if (upstream.Scheme != "http" && upstream.Scheme != "https") || upstream.Host == "" {
		return nil, fmt.Errorf("upstream url must be an absolute http(s) URL, got %q", cfg.UpstreamURL)
	}
	upstream.RawQuery = ""
	upstream.Fragment = ""

	strip := make(map[string]struct{}, len(cfg.SignedHeaders))
	for _, name := range cfg.SignedHeaders {
		strip[http.CanonicalHeaderKey(name)] = struct{}{}
	}

	return &ProxyHandler{
		client: &http.Client{
			Transport: cfg.Transport,
			// Redirects are the caller's business.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		upstream: upstream,
		timeout:  cfg.Timeout,
		strip:    strip,
		metrics:  cfg.Metrics,
		log:      cfg.Logger.With().Str("component", "proxy").Logger(),
	}, nil
}

// Forward proxies the request to the upstream API and copies the response
// back verbatim. Errors raised before a response arrives are answered with
// the JSON error envelope.
func (p *ProxyHandler) Forward(c *gin.Context) {
	ctx := c.Request.Context()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	proxyReq, err := p.createProxyRequest(ctx, c)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, apperror.ErrPayloadTooLarge(maxErr.Limit))
			return
		}
		p.log.Error().Err(err).Msg("failed to build upstream request")
		response.Error(c, apperror.InternalError(err))
		return
	}

	start := time.Now()
	resp, err := p.client.Do(proxyReq)
	if err != nil {
		p.observe("error", start)
		appErr := classifyUpstreamError(err)
		p.log.Error().
			Err(err).
			Str("request_id", c.GetString(middleware.CtxRequestID)).
			Str("code", appErr.Code).
			Str("url", proxyReq.URL.Redacted()).
			Msg("upstream request failed")
		_ = c.Error(err)
		response.Error(c, appErr)
		return
	}
	defer resp.Body.Close()
	p.observe(strconv.Itoa(resp.StatusCode), start)

	p.forwardResponse(c, resp)
}

func (p *ProxyHandler) observe(status string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.UpstreamRequests.WithLabelValues(status).Inc()
	p.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
}

// targetURL joins the upstream base with the inbound escaped path and query.
func (p *ProxyHandler) targetURL(in *url.URL) string {
	base := strings.TrimSuffix(p.upstream.String(), "/")
	target := base + in.EscapedPath()
	if in.RawQuery != "" {
		target += "?" + in.RawQuery
	}
	return target
}

func (p *ProxyHandler) createProxyRequest(ctx context.Context, c *gin.Context) (*http.Request, error) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
	}

	// A bytes.Reader body gives the request a GetBody, which the signing
	// transport relies on to send a fresh body per attempt.
	proxyReq, err := http.NewRequestWithContext(ctx, c.Request.Method, p.targetURL(c.Request.URL), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	for name, values := range c.Request.Header {
		if p.skipInbound(name) {
			continue
		}
		for _, value := range values {
			proxyReq.Header.Add(name, value)
		}
	}
	removeConnectionHeaders(proxyReq.Header, c.Request.Header)

	if id := c.GetString(middleware.CtxRequestID); id != "" {
		proxyReq.Header.Set(middleware.HeaderRequestID, id)
	}
	return proxyReq, nil
}

func (p *ProxyHandler) skipInbound(name string) bool {
	name = http.CanonicalHeaderKey(name)
	if name == "Host" || name == "Content-Length" || isHopHeader(name) {
		return true
	}
	if strings.HasPrefix(name, signedHeaderPrefix) {
		return true
	}
	_, ok := p.strip[name]
	return ok
}

func (p *ProxyHandler) forwardResponse(c *gin.Context, resp *http.Response) {
	for name, values := range resp.Header {
		if isHopHeader(name) || name == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Writer.Header().Add(name, value)
		}
	}
	removeConnectionHeaders(c.Writer.Header(), resp.Header)
	if resp.ContentLength > 0 {
		c.Writer.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}

	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()

	if isStreamingResponse(resp) {
		p.forwardStreamingResponse(c, resp)
		return
	}
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// Client went away or upstream broke mid-body; the status is out.
		p.log.Warn().Err(err).Msg("copying upstream response body")
	}
}

func (p *ProxyHandler) forwardStreamingResponse(c *gin.Context, resp *http.Response) {
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return
			}
			c.Writer.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Warn().Err(err).Msg("reading streaming upstream response")
			}
			return
		}
	}
}

func isStreamingResponse(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") || resp.ContentLength == -1
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if h == name {
			return true
		}
	}
	return false
}

// removeConnectionHeaders drops headers named in src's Connection header.
func removeConnectionHeaders(dst, src http.Header) {
	for _, field := range src.Values("Connection") {
		for _, name := range strings.Split(field, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dst.Del(name)
			}
		}
	}
}

// classifyUpstreamError maps a client error onto the proxy's error codes.
// Signing errors keep their own code.
func classifyUpstreamError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) && netErr.Timeout() {
		return apperror.ErrUpstreamTimeout(err)
	}
	return apperror.ErrUpstreamUnavailable(err)
}
