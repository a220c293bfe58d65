// Package provisioning turns settled checkout sessions into accounts. The
// details of what to build ride along in the session metadata written at
// checkout creation and come back on the webhook, so provisioning never
// depends on request-time state.
package provisioning

import (
	"cprtrainer/internal/types"
)

// Metadata keys attached to every checkout session.
const (
	MetaPaymentType     = "payment_type"
	MetaUserName        = "user_name"
	MetaUserEmail       = "user_email"
	MetaVoicePreference = "voice_preference"
	MetaPlanKind        = "plan_kind"
	MetaTeamName        = "team_name"
	MetaTeamID          = "team_id"
	MetaInviteCode      = "invite_code"
)

// Details is the decoded provisioning payload carried in session metadata.
type Details struct {
	PaymentType     types.PaymentType
	UserName        string
	UserEmail       string
	VoicePreference string
	Plan            types.ProvisioningPlan
}

// EncodeMetadata flattens provisioning details into the string map a checkout
// session can carry. Empty optional fields are omitted.
func EncodeMetadata(d Details) map[string]string {
	m := map[string]string{
		MetaPaymentType: string(d.PaymentType),
		MetaUserEmail:   d.UserEmail,
		MetaPlanKind:    string(d.Plan.Kind),
	}
	if d.UserName != "" {
		m[MetaUserName] = d.UserName
	}
	if d.VoicePreference != "" {
		m[MetaVoicePreference] = d.VoicePreference
	}
	if d.Plan.TeamName != "" {
		m[MetaTeamName] = d.Plan.TeamName
	}
	if d.Plan.TeamID != "" {
		m[MetaTeamID] = d.Plan.TeamID
	}
	if d.Plan.InviteCode != "" {
		m[MetaInviteCode] = d.Plan.InviteCode
	}
	return m
}

// DecodeMetadata parses session metadata back into provisioning details and
// validates the plan variant. Webhooks for sessions created elsewhere (or
// with corrupted metadata) fail here rather than half-provisioning.
func DecodeMetadata(m map[string]string) (Details, error) {
	d := Details{
		PaymentType:     types.PaymentType(m[MetaPaymentType]),
		UserName:        m[MetaUserName],
		UserEmail:       m[MetaUserEmail],
		VoicePreference: m[MetaVoicePreference],
		Plan: types.ProvisioningPlan{
			Kind:       types.PlanKind(m[MetaPlanKind]),
			TeamName:   m[MetaTeamName],
			TeamID:     m[MetaTeamID],
			InviteCode: m[MetaInviteCode],
		},
	}

	if d.UserEmail == "" {
		return Details{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"session metadata is missing user_email",
			nil,
		)
	}
	if !d.PaymentType.IsValid() {
		return Details{}, types.NewAppError(
			types.ErrCodeValidationUnknownPayment,
			"session metadata carries an unknown payment type",
			nil,
		)
	}
	if err := d.Plan.Validate(); err != nil {
		return Details{}, err
	}
	return d, nil
}
