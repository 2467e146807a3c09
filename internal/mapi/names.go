package mapi

import (
	"fmt"
	"strconv"
	"strings"
)

// Storage and stream names used by the .msg layout (MS-OXMSG 2.2).
const (
	PropertiesStream = "__properties_version1.0"
	SubstgPrefix     = "__substg1.0_"
	RecipientPrefix  = "__recip_version1.0_#"
	AttachmentPrefix = "__attach_version1.0_#"
	NameIDStorage    = "__nameid_version1.0"

	ordinalDigits = 8
)

// StreamName returns the auxiliary stream name for tag.
func StreamName(tag PropTag) string {
	return fmt.Sprintf("%s%08X", SubstgPrefix, uint32(tag))
}

// ElementStreamName returns the stream holding element i of a
// variable-length multi-valued property.
func ElementStreamName(tag PropTag, i int) string {
	return fmt.Sprintf("%s-%08X", StreamName(tag), i)
}

// RecipientStorageName returns the storage name for recipient ordinal n.
func RecipientStorageName(n int) string {
	return fmt.Sprintf("%s%08X", RecipientPrefix, n)
}

// AttachmentStorageName returns the storage name for attachment ordinal n.
func AttachmentStorageName(n int) string {
	return fmt.Sprintf("%s%08X", AttachmentPrefix, n)
}

// ParseOrdinal extracts the hex ordinal from a name of the form prefix +
// eight hex digits. Names that do not match report false.
func ParseOrdinal(name, prefix string) (int, bool) {
	if len(name) != len(prefix)+ordinalDigits || !strings.EqualFold(name[:len(prefix)], prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(name[len(prefix):], 16, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
