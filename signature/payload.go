package signature

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	TypeConvention  = "c"
	TypeAttestation = "a"
)

// Payload is the projection of a convention embedded in verification links.
// Keys are kept short for URL length and the field order is the canonical
// serialization order. Status is deliberately absent.
type Payload struct {
	Type       string `json:"t"`
	ID         string `json:"id"`
	Student    string `json:"s"`
	Enterprise string `json:"e"`
	Dates      Dates  `json:"d"`
	TotalDays  *int   `json:"h,omitempty"`
}

type Dates struct {
	Start string `json:"s"`
	End   string `json:"f"`
}

func (p Payload) validate() error {
	switch p.Type {
	case TypeConvention:
		if p.TotalDays != nil {
			return errors.New("convention payload carries attestation days")
		}
	case TypeAttestation:
		if p.TotalDays == nil {
			return errors.New("attestation payload without total days")
		}
	default:
		return fmt.Errorf("unknown payload type %q", p.Type)
	}
	if p.ID == "" {
		return errors.New("payload without id")
	}
	return nil
}

// Encode returns the base64url (unpadded) form of the payload JSON.
func Encode(p Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(body), nil
}

// Decode parses a base64url payload. Padded input is accepted. Any error
// means the link is unreadable, not that it was tampered with.
func Decode(data string) (Payload, error) {
	var p Payload
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("parse payload: %w", err)
	}
	if dec.More() {
		return p, errors.New("parse payload: trailing data")
	}
	if err := p.validate(); err != nil {
		return p, err
	}
	return p, nil
}

// BuildLink signs p and returns <base>/verify?data=...&sig=...
func (s *Signer) BuildLink(baseURL string, p Payload) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	data, err := Encode(p)
	if err != nil {
		return "", err
	}
	sig, err := s.Sign(p)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("data", data)
	q.Set("sig", sig)
	return strings.TrimRight(baseURL, "/") + "/verify?" + q.Encode(), nil
}
