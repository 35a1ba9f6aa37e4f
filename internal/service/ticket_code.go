package service

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// ticketCodeRandomBytes gives 64 random bits per code on top of the date
// stamp.
const ticketCodeRandomBytes = 8

// CodeGenerator produces candidate ticket codes.  Candidates are checked
// against the ledger before use, so a generator only has to make
// collisions unlikely.
type CodeGenerator func(now time.Time) (string, error)

// NewTicketCode returns a code of the form TICKET-YYYYMMDD-XXXXXXXXXXXXXXXX
// where the suffix is 16 upper-case hex digits from crypto/rand.
func NewTicketCode(now time.Time) (string, error) {
	b := make([]byte, ticketCodeRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "TICKET-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(b)), nil
}
