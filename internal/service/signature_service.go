package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
	"net/url"
	"sort"
	"strings"

	"caparica-client/internal/core/domain"
	"caparica-client/pkg/apperror"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Supported MAC algorithms.
const (
	AlgorithmHMACSHA256     = "hmac-sha256"
	AlgorithmHMACSHA512     = "hmac-sha512"
	AlgorithmHMACSHA3256    = "hmac-sha3-256"
	AlgorithmHMACBlake2b256 = "hmac-blake2b-256"
)

// Supported signature encodings.
const (
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

var (
	errEmptySecret   = errors.New("secret is empty")
	errEmptyParamKey = errors.New("parameter set contains an empty key")
)

var hashFuncs = map[string]func() hash.Hash{
	AlgorithmHMACSHA256:  sha256.New,
	AlgorithmHMACSHA512:  sha512.New,
	AlgorithmHMACSHA3256: sha3.New256,
	AlgorithmHMACBlake2b256: func() hash.Hash {
		// New256 only fails for keys longer than 64 bytes.
		h, _ := blake2b.New256(nil)
		return h
	},
}

// HMACSignatureService implements ports.Signer with a keyed HMAC over the
// canonical form of the parameter set.
type HMACSignatureService struct {
	algorithm string
	newHash   func() hash.Hash
	encode    func([]byte) string
}

// NewHMACSignatureService creates a signer for the given algorithm and output
// encoding. Empty values select hmac-sha256 and lowercase hex.
func NewHMACSignatureService(algorithm, encoding string) (*HMACSignatureService, error) {
	if algorithm == "" {
		algorithm = AlgorithmHMACSHA256
	}
	newHash, ok := hashFuncs[strings.ToLower(algorithm)]
	if !ok {
		return nil, apperror.ErrUnsupportedAlgorithm(algorithm)
	}

	var encode func([]byte) string
	switch strings.ToLower(encoding) {
	case "", EncodingHex:
		encode = hex.EncodeToString
	case EncodingBase64:
		encode = base64.StdEncoding.EncodeToString
	default:
		return nil, apperror.ErrUnsupportedAlgorithm(encoding)
	}

	return &HMACSignatureService{
		algorithm: strings.ToLower(algorithm),
		newHash:   newHash,
		encode:    encode,
	}, nil
}

// Algorithm returns the configured MAC algorithm name.
func (s *HMACSignatureService) Algorithm() string {
	return s.algorithm
}

// Sign returns the encoded MAC of the canonical parameter string keyed by secret.
func (s *HMACSignatureService) Sign(params domain.ParameterSet, secret string) (string, error) {
	if secret == "" {
		return "", errEmptySecret
	}
	canonical, err := s.BuildCanonicalString(params)
	if err != nil {
		return "", err
	}

	mac := hmac.New(s.newHash, []byte(secret))
	mac.Write([]byte(canonical))
	return s.encode(mac.Sum(nil)), nil
}

// BuildCanonicalString renders params as query-escaped key=value pairs,
// sorted by key and joined with "&".
// Format: k1=v1&k2=v2
func (s *HMACSignatureService) BuildCanonicalString(params domain.ParameterSet) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "" {
			return "", errEmptyParamKey
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String(), nil
}
