package template

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"vigil/internal/domain"
)

var knownPlaceholders = []string{"api_key", "username", "password", "ioc_type", "ioc_value"}

// substituter replaces {placeholder} tokens in template strings. Credential
// placeholders are only bound when their value is set; a template that still
// references an unbound placeholder after substitution is a configuration
// error, not a crash.
type substituter struct {
	vals map[string]string
}

func newSubstituter(material domain.CredentialMaterial, iocType domain.IOCType, iocValue string) *substituter {
	vals := map[string]string{
		"ioc_type":  string(iocType),
		"ioc_value": iocValue,
	}
	if material.APIKey != "" {
		vals["api_key"] = material.APIKey
	}
	if material.Username != "" {
		vals["username"] = material.Username
	}
	if material.Password != "" {
		vals["password"] = material.Password
	}
	return &substituter{vals: vals}
}

func (s *substituter) apply(tpl string) (string, error) {
	out := tpl
	for k, v := range s.vals {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	for _, k := range knownPlaceholders {
		if strings.Contains(out, "{"+k+"}") {
			return "", fmt.Errorf("template %q references unset placeholder {%s}", tpl, k)
		}
	}
	return out, nil
}

// applyEscaped is apply with the indicator value path-escaped, for templates
// expanded into the URL path.
func (s *substituter) applyEscaped(tpl string) (string, error) {
	escaped := *s
	escaped.vals = make(map[string]string, len(s.vals))
	for k, v := range s.vals {
		escaped.vals[k] = v
	}
	escaped.vals["ioc_value"] = url.PathEscape(s.vals["ioc_value"])
	return escaped.apply(tpl)
}

func (s *substituter) applyMap(templates map[string]string) (map[string]string, error) {
	if len(templates) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(templates))
	for k, tpl := range templates {
		v, err := s.apply(tpl)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// buildBody produces the request body map. A literal string template is
// substituted then parsed as JSON, wrapping parse failures as
// {"value": <string>}. An object template is substituted recursively so
// placeholders nested inside arrays and objects resolve too.
func (s *substituter) buildBody(req domain.RequestConfig) (map[string]any, error) {
	if req.BodyTemplate != "" {
		text, err := s.apply(req.BodyTemplate)
		if err != nil {
			return nil, err
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return map[string]any{"value": text}, nil
		}
		return body, nil
	}
	if len(req.BodyObject) > 0 {
		body := make(map[string]any, len(req.BodyObject))
		for k, v := range req.BodyObject {
			sv, err := s.applyValue(v)
			if err != nil {
				return nil, err
			}
			body[k] = sv
		}
		return body, nil
	}
	return nil, nil
}

func (s *substituter) applyValue(v any) (any, error) {
	switch tv := v.(type) {
	case string:
		return s.apply(tv)
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, inner := range tv {
			sv, err := s.applyValue(inner)
			if err != nil {
				return nil, err
			}
			out[k] = sv
		}
		return out, nil
	case []any:
		out := make([]any, len(tv))
		for i, inner := range tv {
			sv, err := s.applyValue(inner)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	default:
		return v, nil
	}
}
