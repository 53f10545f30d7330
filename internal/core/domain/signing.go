package domain

import (
	"fmt"
	"net/url"
	"strings"

	"caparica-client/pkg/apperror"
)

// HeaderRole identifies which piece of signing metadata a header carries.
type HeaderRole string

const (
	RoleTimestamp HeaderRole = "timestamp"
	RoleSignature HeaderRole = "signature"
	RoleClient    HeaderRole = "client"
	RolePath      HeaderRole = "path"
	RoleMethod    HeaderRole = "method"
)

// Roles lists every header role in the order headers are written.
var Roles = []HeaderRole{RoleTimestamp, RoleClient, RolePath, RoleMethod, RoleSignature}

// Default wire header names.
const (
	DefaultTimestampHeader = "X-CAPARICA-TIMESTAMP"
	DefaultSignatureHeader = "X-CAPARICA-SIG"
	DefaultClientHeader    = "X-CAPARICA-CLIENT"
	DefaultPathHeader      = "X-CAPARICA-PATH"
	DefaultMethodHeader    = "X-CAPARICA-METHOD"
)

// HeaderKeys maps each role to the header name it is written under.
type HeaderKeys struct {
	Timestamp string `json:"timestamp" mapstructure:"timestamp"`
	Signature string `json:"signature" mapstructure:"signature"`
	Client    string `json:"client" mapstructure:"client"`
	Path      string `json:"path" mapstructure:"path"`
	Method    string `json:"method" mapstructure:"method"`
}

// DefaultHeaderKeys returns the X-CAPARICA-* header names.
func DefaultHeaderKeys() HeaderKeys {
	return HeaderKeys{
		Timestamp: DefaultTimestampHeader,
		Signature: DefaultSignatureHeader,
		Client:    DefaultClientHeader,
		Path:      DefaultPathHeader,
		Method:    DefaultMethodHeader,
	}
}

// Get returns the header name for role, or "" for an unknown role.
func (k HeaderKeys) Get(role HeaderRole) string {
	switch role {
	case RoleTimestamp:
		return k.Timestamp
	case RoleSignature:
		return k.Signature
	case RoleClient:
		return k.Client
	case RolePath:
		return k.Path
	case RoleMethod:
		return k.Method
	}
	return ""
}

// set reports whether role is known.
func (k *HeaderKeys) set(role HeaderRole, name string) bool {
	switch role {
	case RoleTimestamp:
		k.Timestamp = name
	case RoleSignature:
		k.Signature = name
	case RoleClient:
		k.Client = name
	case RolePath:
		k.Path = name
	case RoleMethod:
		k.Method = name
	default:
		return false
	}
	return true
}

// Merge returns k with every non-empty field of override applied.
func (k HeaderKeys) Merge(override HeaderKeys) HeaderKeys {
	for _, role := range Roles {
		if name := override.Get(role); name != "" {
			k.set(role, name)
		}
	}
	return k
}

// Names returns the header names in role order.
func (k HeaderKeys) Names() []string {
	out := make([]string, 0, len(Roles))
	for _, role := range Roles {
		out = append(out, k.Get(role))
	}
	return out
}

// SigningConfig is the immutable configuration of a request signer.
// IncludePath and IncludeMethod control whether the optional fields take part
// in both the header set and the signature input.
type SigningConfig struct {
	Keys          HeaderKeys `json:"keys"`
	IncludePath   bool       `json:"include_path"`
	IncludeMethod bool       `json:"include_method"`
}

// Keys accepted by SigningConfig.Merge.
const (
	ConfigKeyKeys          = "keys"
	ConfigKeyIncludePath   = "include_path"
	ConfigKeyIncludeMethod = "include_method"
)

// DefaultSigningConfig returns a fresh default configuration: default header
// names, path and method both signed.
func DefaultSigningConfig() SigningConfig {
	return SigningConfig{
		Keys:          DefaultHeaderKeys(),
		IncludePath:   true,
		IncludeMethod: true,
	}
}

// WithKeys returns a copy of c with the non-empty header names of keys applied.
func (c SigningConfig) WithKeys(keys HeaderKeys) SigningConfig {
	c.Keys = c.Keys.Merge(keys)
	return c
}

// Merge deep-merges partial into a copy of c. Nested mappings merge key by
// key; scalar values replace. Unknown keys and unknown roles are ignored.
//
//	cfg, err := domain.DefaultSigningConfig().Merge(map[string]any{
//	    "keys": map[string]any{"signature": "X-CUSTOM-SIG"},
//	})
//
// The merged result is validated.
func (c SigningConfig) Merge(partial map[string]any) (SigningConfig, error) {
	for key, value := range partial {
		switch key {
		case ConfigKeyKeys:
			keys, err := mergeKeys(c.Keys, value)
			if err != nil {
				return c, err
			}
			c.Keys = keys
		case ConfigKeyIncludePath:
			b, ok := value.(bool)
			if !ok {
				return c, apperror.ErrInvalidConfig(fmt.Sprintf("%s must be a boolean, got %T", key, value))
			}
			c.IncludePath = b
		case ConfigKeyIncludeMethod:
			b, ok := value.(bool)
			if !ok {
				return c, apperror.ErrInvalidConfig(fmt.Sprintf("%s must be a boolean, got %T", key, value))
			}
			c.IncludeMethod = b
		}
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func mergeKeys(keys HeaderKeys, value any) (HeaderKeys, error) {
	var entries map[string]any
	switch v := value.(type) {
	case map[string]any:
		entries = v
	case map[string]string:
		entries = make(map[string]any, len(v))
		for role, name := range v {
			entries[role] = name
		}
	case HeaderKeys:
		return keys.Merge(v), nil
	default:
		return keys, apperror.ErrInvalidConfig(fmt.Sprintf("keys must be a mapping, got %T", value))
	}

	for role, raw := range entries {
		name, ok := raw.(string)
		if !ok {
			return keys, apperror.ErrInvalidConfig(fmt.Sprintf("header key %q must be a string, got %T", role, raw))
		}
		// viper lowercases map keys, header roles are lowercase anyway.
		keys.set(HeaderRole(strings.ToLower(role)), name)
	}
	return keys, nil
}

// Validate checks that every role resolves to a distinct, non-empty header name.
func (c SigningConfig) Validate() error {
	seen := make(map[string]HeaderRole, len(Roles))
	for _, role := range Roles {
		name := strings.TrimSpace(c.Keys.Get(role))
		if name == "" {
			return apperror.ErrInvalidConfig(fmt.Sprintf("header key for role %q is empty", role))
		}
		canonical := strings.ToLower(name)
		if other, dup := seen[canonical]; dup {
			return apperror.ErrInvalidConfig(fmt.Sprintf("roles %q and %q share header %q", other, role, name))
		}
		seen[canonical] = role
	}
	return nil
}

// ParameterSet is the exact key/value input handed to a Signer.
type ParameterSet map[string]string

// NewParameterSet seeds a parameter set from query parameters. Repeated values
// for one key are joined with "," in their original order.
func NewParameterSet(query url.Values) ParameterSet {
	params := make(ParameterSet, len(query)+3)
	for key, values := range query {
		params[key] = strings.Join(values, ",")
	}
	return params
}

// ClientIdentity is the calling application's public code and shared secret.
type ClientIdentity struct {
	Code   string `json:"code"`
	Secret string `json:"-"` // never transmitted
}
