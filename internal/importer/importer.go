// Package importer parses ledger export files into service records.
package importer

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"repairdesk/internal/ledger"
)

//go:embed ledger.schema.json
var schemaJSON []byte

// Format is a ledger file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for files that are not JSON or YAML.
var ErrUnsupportedFormat = errors.New("unsupported ledger format")

// SchemaError reports a document that failed schema validation.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "ledger schema: " + strings.Join(e.Problems, "; ")
}

// Rejection is a record that was skipped.
type Rejection struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// Result is the outcome of parsing one document.
type Result struct {
	ImportID string                 `json:"import_id"`
	Records  []ledger.ServiceRecord `json:"records"`
	Rejected []Rejection            `json:"rejected"`
}

// Contacts returns the distinct contacts among the accepted records.
func (r Result) Contacts() []ledger.Contact {
	seen := make(map[ledger.Contact]struct{})
	var out []ledger.Contact
	for _, rec := range r.Records {
		c := ledger.ContactOf(rec)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// IsLedgerFile reports whether path has a supported extension.
func IsLedgerFile(path string) bool {
	_, ok := FormatFor(path)
	return ok
}

// ParseFile reads and parses a ledger file.
func ParseFile(path string) (Result, error) {
	format, ok := FormatFor(path)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	return Parse(data, format)
}

type wireRecord struct {
	ID            string           `json:"id"`
	CustomerName  string           `json:"customer_name"`
	CustomerPhone string           `json:"customer_phone"`
	DeviceBrand   string           `json:"device_brand"`
	DeviceModel   string           `json:"device_model"`
	DamageTags    []string         `json:"damage_tags"`
	Complaint     string           `json:"complaint"`
	Items         []ledger.SubItem `json:"items"`
	ServiceDate   string           `json:"service_date"`
}

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func ledgerSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Parse validates a document against the ledger schema and decodes its
// records. Schema failures reject the document; per-record problems are
// reported in Result.Rejected.
func Parse(data []byte, format Format) (Result, error) {
	jsonData, err := toJSON(data, format)
	if err != nil {
		return Result{}, err
	}
	sch, err := ledgerSchema()
	if err != nil {
		return Result{}, fmt.Errorf("load schema: %w", err)
	}
	res, err := sch.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return Result{}, fmt.Errorf("validate: %w", err)
	}
	if !res.Valid() {
		se := &SchemaError{}
		for _, e := range res.Errors() {
			se.Problems = append(se.Problems, e.String())
		}
		return Result{}, se
	}

	wire, err := decodeRecords(jsonData)
	if err != nil {
		return Result{}, err
	}

	digest := sha256.Sum256(jsonData)
	out := Result{ImportID: uuid.NewString(), Rejected: []Rejection{}}
	for i, w := range wire {
		rec, err := w.toRecord()
		if err == nil && rec.ID == "" {
			rec.ID = derivedID(digest[:], i)
		}
		if err == nil {
			err = ledger.Validate(rec)
		}
		if err != nil {
			out.Rejected = append(out.Rejected, Rejection{Index: i, ID: w.ID, Error: err.Error()})
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func toJSON(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if !json.Valid(data) {
			return nil, errors.New("invalid json document")
		}
		return data, nil
	case FormatYAML:
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		quoteTextFields(&root)
		var doc any
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		return json.Marshal(doc)
	}
	return nil, ErrUnsupportedFormat
}

// textFields are the record and item keys whose values are always text.
// YAML would otherwise read an unquoted 0812345 as a number.
var textFields = map[string]bool{
	"id":             true,
	"customer_name":  true,
	"customer_phone": true,
	"device_brand":   true,
	"device_model":   true,
	"damage_tags":    true,
	"complaint":      true,
	"service_date":   true,
	"category":       true,
	"name":           true,
}

func quoteTextFields(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if textFields[n.Content[i].Value] {
				quoteScalars(n.Content[i+1])
			}
		}
	}
	for _, c := range n.Content {
		quoteTextFields(c)
	}
}

func quoteScalars(n *yaml.Node) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!int", "!!float", "!!bool", "!!timestamp":
			n.Tag = "!!str"
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			quoteScalars(c)
		}
	}
}

func decodeRecords(data []byte) ([]wireRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var recs []wireRecord
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return recs, nil
	}
	var doc struct {
		Records []wireRecord `json:"records"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return doc.Records, nil
}

// derivedID gives records without an id a stable identity so re-importing
// the same file does not duplicate them.
func derivedID(digest []byte, index int) string {
	name := append(append([]byte{}, digest...), []byte(strconv.Itoa(index))...)
	return uuid.NewSHA1(uuid.NameSpaceOID, name).String()
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ledger.NewValidationError("service_date", s, errors.New("unrecognized date"))
}

func (w wireRecord) toRecord() (ledger.ServiceRecord, error) {
	date, err := parseDate(w.ServiceDate)
	if err != nil {
		return ledger.ServiceRecord{}, err
	}
	return ledger.ServiceRecord{
		ID:            strings.TrimSpace(w.ID),
		CustomerName:  w.CustomerName,
		CustomerPhone: w.CustomerPhone,
		DeviceBrand:   w.DeviceBrand,
		DeviceModel:   w.DeviceModel,
		DamageTags:    w.DamageTags,
		Complaint:     w.Complaint,
		Items:         w.Items,
		ServiceDate:   date,
	}, nil
}
