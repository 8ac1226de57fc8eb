package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Field is one entry of a FieldList
type Field struct {
	Key   string
	Value string
}

// FieldList is the wire shape used by the qr and qr_pdf item sections:
// an ordered JSON array of single-key objects, each contributing one
// named field. Duplicate keys are resolved last-occurrence-wins at
// parse time; the list itself preserves order and duplicates so that
// re-serialization reproduces the original wire bytes.
type FieldList []Field

// MarshalJSON renders the list as [ {key: value}, ... ]
func (l FieldList) MarshalJSON() ([]byte, error) {
	out := make([]map[string]string, 0, len(l))
	for _, f := range l {
		out = append(out, map[string]string{f.Key: f.Value})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes [ {key: value}, ... ]. Objects with multiple
// keys are flattened in sorted key order to keep decoding deterministic.
func (l *FieldList) UnmarshalJSON(data []byte) error {
	var raw []map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FieldList, 0, len(raw))
	for _, entry := range raw {
		if len(entry) == 1 {
			for k, v := range entry {
				out = append(out, Field{Key: k, Value: v})
			}
			continue
		}
		keys := make([]string, 0, len(entry))
		for k := range entry {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, Field{Key: k, Value: entry[k]})
		}
	}
	*l = out
	return nil
}

// Get returns the value for key with last-occurrence-wins semantics
func (l FieldList) Get(key string) (string, bool) {
	val, found := "", false
	for _, f := range l {
		if f.Key == key {
			val, found = f.Value, true
		}
	}
	return val, found
}

// QRSpec is the typed form of an item's qr section
type QRSpec struct {
	BaseURL    string
	VerifyCode string
}

// ParseQRSpec extracts the QR payload fields from the wire list.
// Unknown keys are ignored; missing fields stay empty and are rejected
// later by the QR generation stage.
func ParseQRSpec(l FieldList) QRSpec {
	var spec QRSpec
	for _, f := range l {
		switch f.Key {
		case "base_url":
			spec.BaseURL = f.Value
		case "verify_code":
			spec.VerifyCode = f.Value
		}
	}
	return spec
}

// Rect is a rectangle in PDF points, origin bottom-left
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Placement is the typed form of an item's qr_pdf section
type Placement struct {
	SizeCM    float64
	MarginYCM float64
	PageIndex int
	Rect      *Rect
}

// DefaultPlacement returns the placement applied when the qr_pdf
// section omits a field: 2.5 cm square, 1 cm above the bottom edge,
// first page, no explicit rect
func DefaultPlacement() Placement {
	return Placement{SizeCM: 2.5, MarginYCM: 1.0, PageIndex: 0}
}

// ParsePlacement extracts placement fields from the wire list with
// last-occurrence-wins semantics. Numeric parse failures are returned
// to the caller; a qr_rect value without exactly four coordinates is
// ignored.
func ParsePlacement(l FieldList) (Placement, error) {
	p := DefaultPlacement()
	for _, f := range l {
		switch f.Key {
		case "qr_size_cm":
			v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
			if err != nil {
				return p, fmt.Errorf("invalid qr_size_cm %q: %w", f.Value, err)
			}
			p.SizeCM = v
		case "qr_margin_y_cm":
			v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
			if err != nil {
				return p, fmt.Errorf("invalid qr_margin_y_cm %q: %w", f.Value, err)
			}
			p.MarginYCM = v
		case "qr_page":
			v, err := strconv.Atoi(strings.TrimSpace(f.Value))
			if err != nil {
				return p, fmt.Errorf("invalid qr_page %q: %w", f.Value, err)
			}
			p.PageIndex = v
		case "qr_rect":
			rect, err := parseRect(f.Value)
			if err != nil {
				return p, err
			}
			if rect != nil {
				p.Rect = rect
			}
		}
	}
	return p, nil
}

// parseRect parses "x0,y0,x1,y1". Wrong arity yields (nil, nil).
func parseRect(s string) (*Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, nil
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid qr_rect coordinate %q: %w", part, err)
		}
		vals[i] = v
	}
	return &Rect{X0: vals[0], Y0: vals[1], X1: vals[2], Y1: vals[3]}, nil
}
