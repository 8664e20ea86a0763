package domain

import (
	"strings"
	"time"
)

// ============================================================
// Leads
// ============================================================

// Lead is a prospective customer tracked through the claim-and-fulfillment workflow.
// Claim and progress fields are only ever changed by the lifecycle service.
type Lead struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Company           string     `json:"company,omitempty"`
	Email             string     `json:"email,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	Source            string     `json:"source,omitempty"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	EstimatedValue    float64    `json:"estimatedValue"`
	Claimed           bool       `json:"claimed"`
	ClaimedByID       *int64     `json:"claimedById,omitempty"`
	ClaimedAt         *time.Time `json:"claimedAt,omitempty"`
	ContactComplete   bool       `json:"contactComplete"`
	ItemsConfirmed    bool       `json:"itemsConfirmed"`
	SubmittedToDesign bool       `json:"submittedToDesign"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	Version           int64      `json:"version"`
}

// DefaultLeadStatus is the sales status given to new leads.
const DefaultLeadStatus = "new"

// Stage derives the furthest lifecycle stage reached by the lead.
func (l *Lead) Stage() LeadStage {
	switch {
	case !l.Claimed:
		return StageUnclaimed
	case l.SubmittedToDesign && l.ItemsConfirmed && l.ContactComplete:
		return StageSubmittedToDesign
	case l.ItemsConfirmed && l.ContactComplete:
		return StageItemsConfirmed
	case l.ContactComplete:
		return StageContactComplete
	default:
		return StageClaimed
	}
}

// Clone returns a deep copy so cached or stored leads are never shared by pointer.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	c := *l
	if l.ClaimedByID != nil {
		id := *l.ClaimedByID
		c.ClaimedByID = &id
	}
	if l.ClaimedAt != nil {
		t := *l.ClaimedAt
		c.ClaimedAt = &t
	}
	return &c
}

// LeadStage is the ordered lifecycle position derived from a lead's flags.
type LeadStage string

const (
	StageUnclaimed         LeadStage = "unclaimed"
	StageClaimed           LeadStage = "claimed"
	StageContactComplete   LeadStage = "contact_complete"
	StageItemsConfirmed    LeadStage = "items_confirmed"
	StageSubmittedToDesign LeadStage = "submitted_to_design"
)

// NewLead is the intake payload for a lead.
type NewLead struct {
	Name           string  `json:"name"`
	Company        string  `json:"company,omitempty"`
	Email          string  `json:"email,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	Source         string  `json:"source,omitempty"`
	Status         string  `json:"status,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	EstimatedValue float64 `json:"estimatedValue,omitempty"`
}

// Validate normalises the payload in place and reports the first invalid field.
func (n *NewLead) Validate() error {
	n.Name = strings.TrimSpace(n.Name)
	n.Company = strings.TrimSpace(n.Company)
	n.Email = strings.ToLower(strings.TrimSpace(n.Email))
	n.Phone = strings.TrimSpace(n.Phone)
	n.Source = strings.TrimSpace(n.Source)
	n.Status = strings.TrimSpace(n.Status)

	if n.Name == "" {
		return &ErrValidation{Field: "name", Message: "name is required"}
	}
	if n.Email == "" && n.Phone == "" {
		return &ErrValidation{Field: "email", Message: "email or phone is required"}
	}
	if n.Email != "" && !strings.Contains(n.Email, "@") {
		return &ErrValidation{Field: "email", Message: "email is malformed"}
	}
	if n.EstimatedValue < 0 {
		return &ErrValidation{Field: "estimatedValue", Message: "must not be negative"}
	}
	if n.Status == "" {
		n.Status = DefaultLeadStatus
	}
	return nil
}

// LeadFilter narrows ListLeads results.
type LeadFilter struct {
	Claimed     *bool
	ClaimedByID *int64
	Limit       int
	Offset      int
}

// Normalize clamps pagination to sane bounds.
func (f *LeadFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// ============================================================
// Progress
// ============================================================

// ProgressStep names one of the three ordered progress flags.
type ProgressStep string

const (
	StepContactComplete   ProgressStep = "contactComplete"
	StepItemsConfirmed    ProgressStep = "itemsConfirmed"
	StepSubmittedToDesign ProgressStep = "submittedToDesign"
)

// ProgressUpdate carries a partial set of progress flags. Nil fields are left untouched.
type ProgressUpdate struct {
	ContactComplete   *bool `json:"contactComplete,omitempty"`
	ItemsConfirmed    *bool `json:"itemsConfirmed,omitempty"`
	SubmittedToDesign *bool `json:"submittedToDesign,omitempty"`
}

// IsEmpty reports whether the update touches no field.
func (u ProgressUpdate) IsEmpty() bool {
	return u.ContactComplete == nil && u.ItemsConfirmed == nil && u.SubmittedToDesign == nil
}

// Steps lists the steps the update touches, in lifecycle order.
func (u ProgressUpdate) Steps() []ProgressStep {
	steps := make([]ProgressStep, 0, 3)
	if u.ContactComplete != nil {
		steps = append(steps, StepContactComplete)
	}
	if u.ItemsConfirmed != nil {
		steps = append(steps, StepItemsConfirmed)
	}
	if u.SubmittedToDesign != nil {
		steps = append(steps, StepSubmittedToDesign)
	}
	return steps
}

// ApplyTo merges the provided fields into a copy of lead.
func (u ProgressUpdate) ApplyTo(lead *Lead) *Lead {
	out := lead.Clone()
	if u.ContactComplete != nil {
		out.ContactComplete = *u.ContactComplete
	}
	if u.ItemsConfirmed != nil {
		out.ItemsConfirmed = *u.ItemsConfirmed
	}
	if u.SubmittedToDesign != nil {
		out.SubmittedToDesign = *u.SubmittedToDesign
	}
	return out
}

// Bool is a small helper for building ProgressUpdate literals.
func Bool(v bool) *bool { return &v }

// ============================================================
// Contact logs
// ============================================================

// ContactMethod is the channel used for a contact event.
type ContactMethod string

const (
	ContactEmail    ContactMethod = "email"
	ContactPhone    ContactMethod = "phone"
	ContactInPerson ContactMethod = "in-person"
	ContactVideo    ContactMethod = "video"
	ContactText     ContactMethod = "text"
)

// ContactMethods lists every supported method.
var ContactMethods = []ContactMethod{ContactEmail, ContactPhone, ContactInPerson, ContactVideo, ContactText}

// ParseContactMethod validates a raw method string.
func ParseContactMethod(raw string) (ContactMethod, error) {
	m := ContactMethod(strings.ToLower(strings.TrimSpace(raw)))
	for _, valid := range ContactMethods {
		if m == valid {
			return m, nil
		}
	}
	return "", &ErrInvalidMethod{Method: raw}
}

// ContactLog is an append-only record of one communication with a lead.
type ContactLog struct {
	ID            int64         `json:"id"`
	LeadID        int64         `json:"leadId"`
	UserID        int64         `json:"userId"`
	ContactMethod ContactMethod `json:"contactMethod"`
	Notes         *string       `json:"notes,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewContactLog is the insert payload for a contact log.
type NewContactLog struct {
	LeadID        int64
	UserID        int64
	ContactMethod ContactMethod
	Notes         string
	Timestamp     time.Time
}

// ============================================================
// Lifecycle results
// ============================================================

// NextStep is the follow-up the caller should take after a successful claim.
type NextStep string

const NextStepCreateOrder NextStep = "create_order"

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	Lead *Lead    `json:"lead"`
	Next NextStep `json:"next"`
}

// ContactResult is returned by a successful contact log.
type ContactResult struct {
	Log  *ContactLog `json:"log"`
	Lead *Lead       `json:"lead"`
}

// LeadDetail bundles a lead with its contact history and the caller's legal actions.
type LeadDetail struct {
	Lead     *Lead            `json:"lead"`
	Stage    LeadStage        `json:"stage"`
	Contacts []ContactLog     `json:"contacts"`
	Actions  AvailableActions `json:"actions"`
}
