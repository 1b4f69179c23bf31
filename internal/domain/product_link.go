package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProductLink represents a shopping URL attached to an outfit
type ProductLink struct {
	ID       uuid.UUID `json:"id" db:"id"`
	OutfitID uuid.UUID `json:"outfit_id" db:"outfit_id"`
	URL      string    `json:"url" db:"url"`
	Domain   string    `json:"domain" db:"domain"`
	Status   string    `json:"status" db:"status"`
	IsValid  bool      `json:"is_valid" db:"is_valid"`

	// Metadata is nil until the first validation attempt finishes
	Metadata Metadata `json:"metadata" db:"metadata"`

	// Timestamps
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// Link status constants
const (
	LinkStatusPending = "pending"
	LinkStatusValid   = "valid"
	LinkStatusInvalid = "invalid"
)

// ErrLinkNotFound is returned when a product link does not exist
var ErrLinkNotFound = errors.New("product link not found")

// Metadata is the result bag written by a validation run. It is either
// SuccessMetadata or FailureMetadata.
type Metadata interface {
	isMetadata()
	ValidatedTime() time.Time
}

// SuccessMetadata is written when a link validated
type SuccessMetadata struct {
	Title       string    `json:"title"`
	Image       string    `json:"image"`
	Price       string    `json:"price"`
	ValidatedAt time.Time `json:"validatedAt"`
}

// FailureMetadata is written when a link was rejected
type FailureMetadata struct {
	Error       string    `json:"error"`
	ValidatedAt time.Time `json:"validatedAt"`
}

func (SuccessMetadata) isMetadata() {}
func (FailureMetadata) isMetadata() {}

func (m SuccessMetadata) ValidatedTime() time.Time { return m.ValidatedAt }
func (m FailureMetadata) ValidatedTime() time.Time { return m.ValidatedAt }

// ValidationOutcome is the terminal result of one validation run. Status and
// IsValid are derived from the metadata variant so they can never disagree.
type ValidationOutcome struct {
	// Domain is only set for valid outcomes (the resolved host)
	Domain   string
	Metadata Metadata
}

// ValidOutcome builds the outcome for a link that passed every check
func ValidOutcome(domain string, meta SuccessMetadata) ValidationOutcome {
	return ValidationOutcome{Domain: domain, Metadata: meta}
}

// InvalidOutcome builds the outcome for a rejected link
func InvalidOutcome(reason string, validatedAt time.Time) ValidationOutcome {
	return ValidationOutcome{Metadata: FailureMetadata{Error: reason, ValidatedAt: validatedAt}}
}

// IsValid reports whether the outcome marks the link valid
func (o ValidationOutcome) IsValid() bool {
	_, ok := o.Metadata.(SuccessMetadata)
	return ok
}

// Status returns the persisted status string for the outcome
func (o ValidationOutcome) Status() string {
	if o.IsValid() {
		return LinkStatusValid
	}
	return LinkStatusInvalid
}

// Reason returns the failure reason, or "" for valid outcomes
func (o ValidationOutcome) Reason() string {
	if f, ok := o.Metadata.(FailureMetadata); ok {
		return f.Error
	}
	return ""
}

// MarshalMetadata encodes metadata for the JSONB column. Nil encodes as null.
func MarshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

// UnmarshalMetadata decodes the JSONB column back into the closed variant.
// A document carrying an "error" key is a failure, anything else a success.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	if _, ok := probe["error"]; ok {
		var f FailureMetadata
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to decode failure metadata: %w", err)
		}
		return f, nil
	}

	var s SuccessMetadata
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode success metadata: %w", err)
	}
	return s, nil
}

// UnmarshalJSON lets ProductLink round-trip through JSON despite the
// interface-typed Metadata field
func (l *ProductLink) UnmarshalJSON(data []byte) error {
	type alias ProductLink
	aux := struct {
		*alias
		Metadata json.RawMessage `json:"metadata"`
	}{alias: (*alias)(l)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	meta, err := UnmarshalMetadata(aux.Metadata)
	if err != nil {
		return err
	}
	l.Metadata = meta
	return nil
}
