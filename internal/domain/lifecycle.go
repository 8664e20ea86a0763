package domain

// ============================================================
// Transition rules
// ============================================================

// CheckProgress validates an update against the lead's current flags.
// Setting a flag true requires every earlier flag to be true either already or in the same
// update. Clearing a flag is always allowed.
func CheckProgress(current *Lead, u ProgressUpdate) error {
	if !current.Claimed {
		return &ErrNotClaimed{LeadID: current.ID}
	}

	next := u.ApplyTo(current)

	if u.ItemsConfirmed != nil && *u.ItemsConfirmed && !next.ContactComplete {
		return &ErrPrecedingStepIncomplete{Step: StepItemsConfirmed, Requires: StepContactComplete}
	}
	if u.SubmittedToDesign != nil && *u.SubmittedToDesign {
		if !next.ContactComplete {
			return &ErrPrecedingStepIncomplete{Step: StepSubmittedToDesign, Requires: StepContactComplete}
		}
		if !next.ItemsConfirmed {
			return &ErrPrecedingStepIncomplete{Step: StepSubmittedToDesign, Requires: StepItemsConfirmed}
		}
	}
	return nil
}

// CascadeRegression extends u so that clearing a step also clears every later step.
func CascadeRegression(u ProgressUpdate) ProgressUpdate {
	if u.ContactComplete != nil && !*u.ContactComplete {
		if u.ItemsConfirmed == nil || *u.ItemsConfirmed {
			u.ItemsConfirmed = Bool(false)
		}
	}
	if u.ItemsConfirmed != nil && !*u.ItemsConfirmed {
		if u.SubmittedToDesign == nil || *u.SubmittedToDesign {
			u.SubmittedToDesign = Bool(false)
		}
	}
	return u
}

// RequiredPermissions lists the capabilities an update needs, without duplicates.
func RequiredPermissions(u ProgressUpdate) []Permission {
	seen := make(map[Permission]bool, 2)
	out := make([]Permission, 0, 2)
	for _, step := range u.Steps() {
		p := StepPermission[step]
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// AvailableActions reports which lifecycle operations an actor may legally perform right now.
type AvailableActions struct {
	CanClaim              bool `json:"canClaim"`
	CanLogContact         bool `json:"canLogContact"`
	CanSetContactComplete bool `json:"canSetContactComplete"`
	CanConfirmItems       bool `json:"canConfirmItems"`
	CanSubmitToDesign     bool `json:"canSubmitToDesign"`
}

// ActionsFor evaluates the same rules the lifecycle service enforces.
func ActionsFor(lead *Lead, perms PermissionSet) AvailableActions {
	if lead == nil {
		return AvailableActions{}
	}
	can := func(step ProgressStep) bool {
		if !perms.Has(StepPermission[step]) {
			return false
		}
		var u ProgressUpdate
		switch step {
		case StepContactComplete:
			u.ContactComplete = Bool(true)
		case StepItemsConfirmed:
			u.ItemsConfirmed = Bool(true)
		case StepSubmittedToDesign:
			u.SubmittedToDesign = Bool(true)
		}
		return CheckProgress(lead, u) == nil
	}
	return AvailableActions{
		CanClaim:              !lead.Claimed && perms.Has(PermClaimLeads),
		CanLogContact:         lead.Claimed && perms.Has(PermLogContact),
		CanSetContactComplete: can(StepContactComplete),
		CanConfirmItems:       can(StepItemsConfirmed),
		CanSubmitToDesign:     can(StepSubmittedToDesign),
	}
}

// ============================================================
// Events
// ============================================================

// LeadEventType names a lifecycle event published after a committed mutation.
type LeadEventType string

const (
	EventLeadCreated         LeadEventType = "lead.created"
	EventLeadClaimed         LeadEventType = "lead.claimed"
	EventLeadProgressUpdated LeadEventType = "lead.progress_updated"
	EventLeadContactLogged   LeadEventType = "lead.contact_logged"
)

// LeadEvent is the payload published for downstream consumers.
type LeadEvent struct {
	ID         string        `json:"id"`
	Type       LeadEventType `json:"type"`
	LeadID     int64         `json:"leadId"`
	ActorID    int64         `json:"actorId"`
	OccurredAt string        `json:"occurredAt"`
	Lead       *Lead         `json:"lead"`
	ContactLog *ContactLog   `json:"contactLog,omitempty"`
}
