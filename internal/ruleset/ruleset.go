// Package ruleset reads rule set documents and claim files from disk.
//
// Rule sets are YAML or JSON documents of the form {version, rules: [...]}.
// Claims and sample claims are JSON lines, one record per line, or a YAML list.
//
// YAML reads an unquoted code that looks like a number as a number, so
// 250.00 becomes 250 and never equals the claim's "250.00". Quote codes
// with trailing or leading zeros: value: "250.00", value: "0001".
package ruleset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/types"
)

// Format selects a document encoding.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// maxLine bounds one JSON line. Claims are small; this is generous.
const maxLine = 1 << 20

// Document is the on-disk rule set.
type Document struct {
	Version int          `yaml:"version" json:"version"`
	Rules   []types.Rule `yaml:"rules" json:"rules"`
}

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown file type %q (expected .yaml, .json or .jsonl)", filepath.Ext(path))
	}
}

// LoadRules reads a rule set file.
func LoadRules(path string) ([]types.Rule, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rs, err := DecodeRules(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// DecodeRules decodes a rule set document.
func DecodeRules(r io.Reader, format Format) ([]types.Rule, error) {
	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatJSONL:
		list, err := DecodeJSONL[types.Rule](r)
		if err != nil {
			return nil, err
		}
		doc.Rules = list
	default:
		return nil, fmt.Errorf("unsupported rule set format %q", format)
	}
	return doc.Rules, nil
}

// Validate checks every rule against the invariants of its status and
// rejects duplicate ids. All problems are joined into one error.
func Validate(rs []types.Rule) error {
	var errs []error
	seen := make(map[types.RuleID]bool, len(rs))
	for i := range rs {
		rule := &rs[i]
		if _, err := types.ParseRuleID(string(rule.ID)); err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		if seen[rule.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate rule id %s", types.ErrRuleValidation, rule.ID))
			continue
		}
		seen[rule.ID] = true
		if err := rules.ValidateFor(rule, rule.Status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadClaims reads claims from a JSON lines or YAML file.
func LoadClaims(path string) ([]types.Claim, error) {
	return load[types.Claim](path)
}

// LoadSamples reads labeled sample claims from a JSON lines or YAML file.
func LoadSamples(path string) ([]types.SampleClaim, error) {
	return load[types.SampleClaim](path)
}

func load[T any](path string) ([]T, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []T
	switch format {
	case FormatJSONL:
		out, err = DecodeJSONL[T](f)
	case FormatYAML:
		err = yaml.NewDecoder(f).Decode(&out)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case FormatJSON:
		err = json.NewDecoder(f).Decode(&out)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// DecodeJSONL decodes one JSON record per line. Blank lines are skipped;
// errors carry the 1-based line number.
func DecodeJSONL[T any](r io.Reader) ([]T, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var out []T
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return out, nil
}

// EncodeJSONL writes one JSON record per line.
func EncodeJSONL[T any](w io.Writer, records []T) error {
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return err
		}
	}
	return nil
}
