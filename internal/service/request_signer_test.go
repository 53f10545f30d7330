package service

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"caparica-client/internal/core/domain"
	"caparica-client/internal/core/ports/mocks"
	"caparica-client/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeRequest struct {
	path    string
	method  string
	query   url.Values
	headers map[string]string
}

func newFakeRequest(method, path string, query url.Values) *fakeRequest {
	return &fakeRequest{path: path, method: method, query: query, headers: map[string]string{}}
}

func (r *fakeRequest) Path() string                 { return r.path }
func (r *fakeRequest) Method() string               { return r.method }
func (r *fakeRequest) Query() (url.Values, error)   { return r.query, nil }
func (r *fakeRequest) SetHeader(name, value string) { r.headers[name] = value }

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func newTestSigner(t *testing.T, cfg domain.SigningConfig, code string, opts ...Option) *RequestSigner {
	t.Helper()
	hmacSvc, err := NewHMACSignatureService("", "")
	require.NoError(t, err)

	opts = append([]Option{WithClock(fixedClock(1700000000))}, opts...)
	s, err := NewRequestSigner(NewStaticIdentityProvider(code, "S"), hmacSvc, cfg, opts...)
	require.NoError(t, err)
	return s
}

func sign(t *testing.T, s *RequestSigner, req *fakeRequest) string {
	t.Helper()
	_, err := s.Process(context.Background(), req)
	require.NoError(t, err)
	return req.headers[s.Config().Keys.Signature]
}

func TestRequestSigner_Process_WorkedExample(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	signer := mocks.NewMockSigner(ctrl)
	signer.EXPECT().Sign(domain.ParameterSet{
		"a":                    "1",
		"X-CAPARICA-TIMESTAMP": "1700000000",
		"X-CAPARICA-PATH":      "/orders",
		"X-CAPARICA-METHOD":    "GET",
	}, "S").Return("sig-value", nil)

	s, err := NewRequestSigner(NewStaticIdentityProvider("C1", "S"), signer, domain.DefaultSigningConfig(),
		WithClock(fixedClock(1700000000)))
	require.NoError(t, err)

	req := newFakeRequest("get", "/orders", url.Values{"a": {"1"}})
	out, err := s.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Same(t, req, out)
	assert.Equal(t, map[string]string{
		"X-CAPARICA-TIMESTAMP": "1700000000",
		"X-CAPARICA-CLIENT":    "C1",
		"X-CAPARICA-PATH":      "/orders",
		"X-CAPARICA-METHOD":    "GET",
		"X-CAPARICA-SIG":       "sig-value",
	}, req.headers)
	assert.Equal(t, url.Values{"a": {"1"}}, req.query, "query must not be mutated")
}

func TestRequestSigner_Process_AllHeadersPresent(t *testing.T) {
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1")

	req := newFakeRequest("POST", "/v1/payments", nil)
	sign(t, s, req)

	for _, role := range domain.Roles {
		name := s.Config().Keys.Get(role)
		assert.NotEmpty(t, req.headers[name], "header %s for role %s", name, role)
	}
}

func TestRequestSigner_Process_SignedFieldsChangeSignature(t *testing.T) {
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1")
	base := sign(t, s, newFakeRequest("GET", "/orders", url.Values{"a": {"1"}}))

	tests := []struct {
		name string
		req  *fakeRequest
	}{
		{"query value", newFakeRequest("GET", "/orders", url.Values{"a": {"2"}})},
		{"extra query param", newFakeRequest("GET", "/orders", url.Values{"a": {"1"}, "b": {"x"}})},
		{"path", newFakeRequest("GET", "/invoices", url.Values{"a": {"1"}})},
		{"method", newFakeRequest("DELETE", "/orders", url.Values{"a": {"1"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, sign(t, s, tt.req))
		})
	}
}

func TestRequestSigner_Process_ClientCodeNotSigned(t *testing.T) {
	s1 := newTestSigner(t, domain.DefaultSigningConfig(), "C1")
	s2 := newTestSigner(t, domain.DefaultSigningConfig(), "C2")

	r1 := newFakeRequest("GET", "/orders", url.Values{"a": {"1"}})
	r2 := newFakeRequest("GET", "/orders", url.Values{"a": {"1"}})

	assert.Equal(t, sign(t, s1, r1), sign(t, s2, r2))
	assert.Equal(t, "C1", r1.headers[domain.DefaultClientHeader])
	assert.Equal(t, "C2", r2.headers[domain.DefaultClientHeader])
}

func TestRequestSigner_Process_MethodIsUppercased(t *testing.T) {
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1")

	lower := newFakeRequest("post", "/orders", nil)
	upper := newFakeRequest("POST", "/orders", nil)

	assert.Equal(t, sign(t, s, lower), sign(t, s, upper))
	assert.Equal(t, "POST", lower.headers[domain.DefaultMethodHeader])
}

func TestRequestSigner_Process_ExcludePath(t *testing.T) {
	cfg := domain.DefaultSigningConfig()
	cfg.IncludePath = false
	s := newTestSigner(t, cfg, "C1")

	r1 := newFakeRequest("GET", "/orders", url.Values{"a": {"1"}})
	r2 := newFakeRequest("GET", "/invoices", url.Values{"a": {"1"}})

	assert.Equal(t, sign(t, s, r1), sign(t, s, r2), "path must not influence the signature")
	assert.NotContains(t, r1.headers, domain.DefaultPathHeader)
	assert.Contains(t, r1.headers, domain.DefaultMethodHeader)
}

func TestRequestSigner_Process_ExcludeMethod(t *testing.T) {
	cfg := domain.DefaultSigningConfig()
	cfg.IncludeMethod = false
	s := newTestSigner(t, cfg, "C1")

	r1 := newFakeRequest("GET", "/orders", nil)
	r2 := newFakeRequest("PUT", "/orders", nil)

	assert.Equal(t, sign(t, s, r1), sign(t, s, r2), "method must not influence the signature")
	assert.NotContains(t, r1.headers, domain.DefaultMethodHeader)
	assert.Contains(t, r1.headers, domain.DefaultPathHeader)
}

func TestRequestSigner_Process_ExcludeBoth(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := domain.DefaultSigningConfig()
	cfg.IncludePath = false
	cfg.IncludeMethod = false

	signer := mocks.NewMockSigner(ctrl)
	signer.EXPECT().Sign(domain.ParameterSet{"X-CAPARICA-TIMESTAMP": "1700000000"}, "S").Return("sig", nil)

	s, err := NewRequestSigner(NewStaticIdentityProvider("C1", "S"), signer, cfg, WithClock(fixedClock(1700000000)))
	require.NoError(t, err)

	req := newFakeRequest("GET", "/orders", nil)
	_, err = s.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, req.headers, 3)
}

func TestRequestSigner_Process_TimestampChangesSignature(t *testing.T) {
	now := int64(1700000000)
	clock := func() time.Time { return time.Unix(now, 0) }
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1", WithClock(clock))

	req := newFakeRequest("GET", "/orders", nil)
	first := sign(t, s, req)
	assert.Equal(t, "1700000000", req.headers[domain.DefaultTimestampHeader])

	now++
	second := sign(t, s, req)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "1700000001", req.headers[domain.DefaultTimestampHeader], "re-processing overwrites the timestamp")
}

func TestRequestSigner_Process_CustomSignatureHeader(t *testing.T) {
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1")

	custom, err := s.WithConfig(map[string]any{"keys": map[string]any{"signature": "X-CUSTOM-SIG"}})
	require.NoError(t, err)

	req := newFakeRequest("GET", "/orders", nil)
	_, err = custom.Process(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, req.headers["X-CUSTOM-SIG"])
	assert.NotContains(t, req.headers, domain.DefaultSignatureHeader)
	assert.Contains(t, req.headers, domain.DefaultTimestampHeader)
	assert.Contains(t, req.headers, domain.DefaultClientHeader)
	assert.Contains(t, req.headers, domain.DefaultPathHeader)
	assert.Contains(t, req.headers, domain.DefaultMethodHeader)

	assert.Equal(t, domain.DefaultSignatureHeader, s.Config().Keys.Signature, "original signer unchanged")
}

func TestRequestSigner_Process_CustomKeysFeedParameterSet(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := domain.DefaultSigningConfig().WithKeys(domain.HeaderKeys{Timestamp: "X-TS", Path: "X-P"})

	signer := mocks.NewMockSigner(ctrl)
	signer.EXPECT().Sign(domain.ParameterSet{
		"X-TS":              "1700000000",
		"X-P":               "/orders",
		"X-CAPARICA-METHOD": "GET",
	}, "S").Return("sig", nil)

	s, err := NewRequestSigner(NewStaticIdentityProvider("C1", "S"), signer, cfg, WithClock(fixedClock(1700000000)))
	require.NoError(t, err)

	req := newFakeRequest("GET", "/orders", nil)
	_, err = s.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "1700000000", req.headers["X-TS"])
	assert.Equal(t, "/orders", req.headers["X-P"])
}

func TestRequestSigner_Process_RepeatedQueryValues(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := domain.DefaultSigningConfig()
	cfg.IncludePath = false
	cfg.IncludeMethod = false

	signer := mocks.NewMockSigner(ctrl)
	signer.EXPECT().Sign(domain.ParameterSet{
		"tag":                  "a,b",
		"X-CAPARICA-TIMESTAMP": "1700000000",
	}, "S").Return("sig", nil)

	s, err := NewRequestSigner(NewStaticIdentityProvider("C1", "S"), signer, cfg, WithClock(fixedClock(1700000000)))
	require.NoError(t, err)

	_, err = s.Process(context.Background(), newFakeRequest("GET", "/", url.Values{"tag": {"a", "b"}}))
	require.NoError(t, err)
}

func TestRequestSigner_Process_SignerFailureLeavesRequestUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	signErr := errors.New("unsupported value")
	signer := mocks.NewMockSigner(ctrl)
	signer.EXPECT().Sign(gomock.Any(), "S").Return("", signErr)

	req := mocks.NewMockOutboundRequest(ctrl)
	req.EXPECT().Query().Return(url.Values{"a": {"1"}}, nil)
	req.EXPECT().Path().Return("/orders")
	req.EXPECT().Method().Return("GET")
	req.EXPECT().SetHeader(gomock.Any(), gomock.Any()).Times(0)

	s, err := NewRequestSigner(NewStaticIdentityProvider("C1", "S"), signer, domain.DefaultSigningConfig())
	require.NoError(t, err)

	_, err = s.Process(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, signErr)
	assert.True(t, apperror.HasCode(err, apperror.CodeSigningFailure))
}

func TestRequestSigner_Process_IdentityFailures(t *testing.T) {
	providerErr := errors.New("no secret configured")

	tests := []struct {
		name  string
		setup func(p *mocks.MockIdentityProvider)
		step  string
	}{
		{
			name: "code",
			setup: func(p *mocks.MockIdentityProvider) {
				p.EXPECT().Code(gomock.Any()).Return("", providerErr)
			},
			step: "client code",
		},
		{
			name: "secret",
			setup: func(p *mocks.MockIdentityProvider) {
				p.EXPECT().Code(gomock.Any()).Return("C1", nil)
				p.EXPECT().Secret(gomock.Any()).Return("", providerErr)
			},
			step: "client secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			identity := mocks.NewMockIdentityProvider(ctrl)
			tt.setup(identity)
			signer := mocks.NewMockSigner(ctrl)

			s, err := NewRequestSigner(identity, signer, domain.DefaultSigningConfig())
			require.NoError(t, err)

			req := newFakeRequest("GET", "/orders", nil)
			_, err = s.Process(context.Background(), req)
			require.Error(t, err)

			assert.ErrorIs(t, err, providerErr)
			assert.True(t, apperror.HasCode(err, apperror.CodeIdentityUnavailable))
			assert.Contains(t, err.Error(), tt.step)
			assert.Empty(t, req.headers)
		})
	}
}

func TestNewRequestSigner_InvalidConfig(t *testing.T) {
	cfg := domain.DefaultSigningConfig()
	cfg.Keys.Client = ""

	_, err := NewRequestSigner(NewStaticIdentityProvider("C1", "S"), nil, cfg)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidConfig))
}

func TestRequestSigner_WithConfig(t *testing.T) {
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1")

	derived, err := s.WithConfig(map[string]any{"include_path": false})
	require.NoError(t, err)
	assert.False(t, derived.Config().IncludePath)
	assert.True(t, derived.Config().IncludeMethod)
	assert.True(t, s.Config().IncludePath)

	_, err = s.WithConfig(map[string]any{"keys": map[string]any{"signature": ""}})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidConfig))
}

func TestRequestSigner_ParamsToSign(t *testing.T) {
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1")

	params, err := s.ParamsToSign(newFakeRequest("GET", "/", url.Values{"a": {"1"}, "b": {"2", "3"}}))
	require.NoError(t, err)
	assert.Equal(t, domain.ParameterSet{"a": "1", "b": "2,3"}, params)
}

func TestRequestSigner_Process_MalformedQueryLeavesRequestUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	parseErr := errors.New(`invalid semicolon separator in query`)
	req := mocks.NewMockOutboundRequest(ctrl)
	req.EXPECT().Query().Return(nil, parseErr)
	req.EXPECT().SetHeader(gomock.Any(), gomock.Any()).Times(0)

	signer := mocks.NewMockSigner(ctrl)
	s, err := NewRequestSigner(NewStaticIdentityProvider("C1", "S"), signer, domain.DefaultSigningConfig())
	require.NoError(t, err)

	_, err = s.Process(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, parseErr)
	assert.True(t, apperror.HasCode(err, apperror.CodeMalformedQuery))
}

func TestRequestSigner_Process_KeepsProviderErrorCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	identity := mocks.NewMockIdentityProvider(ctrl)
	identity.EXPECT().Code(gomock.Any()).Return("C9", nil)
	identity.EXPECT().Secret(gomock.Any()).Return("", apperror.ErrIdentityNotFound("C9"))

	s, err := NewRequestSigner(identity, mocks.NewMockSigner(ctrl), domain.DefaultSigningConfig())
	require.NoError(t, err)

	req := newFakeRequest("GET", "/orders", nil)
	_, err = s.Process(context.Background(), req)
	require.Error(t, err)

	assert.True(t, apperror.HasCode(err, apperror.CodeIdentityNotFound))
	assert.False(t, apperror.HasCode(err, apperror.CodeIdentityUnavailable))
	assert.Empty(t, req.headers)
}

func TestRequestSigner_LogsWithoutSecret(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1", WithLogger(log))

	sign(t, s, newFakeRequest("GET", "/orders", nil))

	assert.Contains(t, buf.String(), `"component":"request_signer"`)
	assert.Contains(t, buf.String(), `"client":"C1"`)
	assert.NotContains(t, buf.String(), `"S"`)
}

func TestRequestSigner_ConcurrentUse(t *testing.T) {
	s := newTestSigner(t, domain.DefaultSigningConfig(), "C1")
	want := sign(t, s, newFakeRequest("GET", "/orders", url.Values{"a": {"1"}}))

	var wg sync.WaitGroup
	results := make([]string, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := newFakeRequest("GET", "/orders", url.Values{"a": {"1"}})
			if _, err := s.Process(context.Background(), req); err == nil {
				results[i] = req.headers[domain.DefaultSignatureHeader]
			}
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
