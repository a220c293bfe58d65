package provisioning

import (
	"crypto/rand"

	"cprtrainer/internal/types"
)

// inviteCodeAlphabet holds the characters used in invite codes. The easily
// confused glyphs 0, O, 1 and I are excluded so codes survive being read
// aloud or written down. 32 characters keeps the byte mapping unbiased.
const inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// inviteCodeLength is the fixed length of team invite codes.
const inviteCodeLength = 8

// maxInviteCodeAttempts bounds the regenerate-on-collision loop when
// inserting a new team.
const maxInviteCodeAttempts = 5

// GenerateInviteCode returns a cryptographically random invite code.
func GenerateInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to generate invite code",
			err,
		)
	}
	for i, b := range buf {
		buf[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(buf), nil
}
