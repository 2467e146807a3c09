// Package mapi decodes the MAPI property streams stored inside Outlook .msg
// containers: fixed-width property records, their typed values, and the
// auxiliary streams that hold variable-length data.
package mapi

import "fmt"

// PropType is the 16-bit type code half of a property tag.
type PropType uint16

// Property data types (MS-OXCDATA 2.11.1).
const (
	PtypInteger16    PropType = 0x0002
	PtypInteger32    PropType = 0x0003
	PtypFloating32   PropType = 0x0004
	PtypFloating64   PropType = 0x0005
	PtypCurrency     PropType = 0x0006
	PtypFloatingTime PropType = 0x0007
	PtypErrorCode    PropType = 0x000A
	PtypBoolean      PropType = 0x000B
	PtypObject       PropType = 0x000D
	PtypInteger64    PropType = 0x0014
	PtypString8      PropType = 0x001E
	PtypString       PropType = 0x001F
	PtypTime         PropType = 0x0040
	PtypGUID         PropType = 0x0048
	PtypBinary       PropType = 0x0102

	MultipleFlag PropType = 0x1000

	PtypMultipleInteger16    = MultipleFlag | PtypInteger16
	PtypMultipleInteger32    = MultipleFlag | PtypInteger32
	PtypMultipleFloating32   = MultipleFlag | PtypFloating32
	PtypMultipleFloating64   = MultipleFlag | PtypFloating64
	PtypMultipleCurrency     = MultipleFlag | PtypCurrency
	PtypMultipleFloatingTime = MultipleFlag | PtypFloatingTime
	PtypMultipleInteger64    = MultipleFlag | PtypInteger64
	PtypMultipleString8      = MultipleFlag | PtypString8
	PtypMultipleString       = MultipleFlag | PtypString
	PtypMultipleTime         = MultipleFlag | PtypTime
	PtypMultipleGUID         = MultipleFlag | PtypGUID
	PtypMultipleBinary       = MultipleFlag | PtypBinary
)

var typeNames = map[PropType]string{
	PtypInteger16:    "Integer16",
	PtypInteger32:    "Integer32",
	PtypFloating32:   "Floating32",
	PtypFloating64:   "Floating64",
	PtypCurrency:     "Currency",
	PtypFloatingTime: "FloatingTime",
	PtypErrorCode:    "ErrorCode",
	PtypBoolean:      "Boolean",
	PtypObject:       "Object",
	PtypInteger64:    "Integer64",
	PtypString8:      "String8",
	PtypString:       "String",
	PtypTime:         "Time",
	PtypGUID:         "GUID",
	PtypBinary:       "Binary",
}

func (t PropType) String() string {
	if name, ok := typeNames[t.Base()]; ok {
		if t.IsMulti() {
			return "Multiple" + name
		}
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(t))
}

// IsMulti reports whether t is a multi-valued type.
func (t PropType) IsMulti() bool { return t&MultipleFlag != 0 }

// Base strips the multi-valued flag.
func (t PropType) Base() PropType { return t &^ MultipleFlag }

// Known reports whether the resolver can decode t.
func (t PropType) Known() bool {
	if _, ok := typeNames[t.Base()]; !ok {
		return false
	}
	if !t.IsMulti() {
		return true
	}
	switch t.Base() {
	case PtypErrorCode, PtypBoolean, PtypObject:
		return false
	}
	return true
}

// Inline reports whether values of t live in the record's 8-byte payload.
func (t PropType) Inline() bool {
	if t.IsMulti() {
		return false
	}
	switch t {
	case PtypInteger16, PtypInteger32, PtypFloating32, PtypFloating64, PtypCurrency,
		PtypFloatingTime, PtypErrorCode, PtypBoolean, PtypInteger64, PtypTime:
		return true
	}
	return false
}

// elemSize is the width of one fixed-size element, or 0 for variable length.
func (t PropType) elemSize() int {
	switch t.Base() {
	case PtypInteger16, PtypBoolean:
		return 2
	case PtypInteger32, PtypFloating32, PtypErrorCode:
		return 4
	case PtypFloating64, PtypCurrency, PtypFloatingTime, PtypInteger64, PtypTime:
		return 8
	case PtypGUID:
		return 16
	}
	return 0
}

// PropID is the 16-bit identifier half of a property tag.
type PropID uint16

// Well-known property identifiers (MS-OXPROPS).
const (
	PidTagImportance                   PropID = 0x0017
	PidTagMessageClass                 PropID = 0x001A
	PidTagSubject                      PropID = 0x0037
	PidTagClientSubmitTime             PropID = 0x0039
	PidTagSentRepresentingName         PropID = 0x0042
	PidTagSentRepresentingEmailAddress PropID = 0x0065
	PidTagSentRepresentingAddressType  PropID = 0x0064
	PidTagTransportMessageHeaders      PropID = 0x007D
	PidTagRecipientType                PropID = 0x0C15
	PidTagSenderName                   PropID = 0x0C1A
	PidTagSenderAddressType            PropID = 0x0C1E
	PidTagSenderEmailAddress           PropID = 0x0C1F
	PidTagDisplayBcc                   PropID = 0x0E02
	PidTagDisplayCc                    PropID = 0x0E03
	PidTagDisplayTo                    PropID = 0x0E04
	PidTagMessageDeliveryTime          PropID = 0x0E06
	PidTagMessageFlags                 PropID = 0x0E07
	PidTagMessageSize                  PropID = 0x0E08
	PidTagAttachSize                   PropID = 0x0E20
	PidTagBody                         PropID = 0x1000
	PidTagRtfCompressed                PropID = 0x1009
	PidTagBodyHTML                     PropID = 0x1013
	PidTagInternetMessageID            PropID = 0x1035
	PidTagInternetReferences           PropID = 0x1039
	PidTagInReplyToID                  PropID = 0x1042
	PidTagDisplayName                  PropID = 0x3001
	PidTagAddressType                  PropID = 0x3002
	PidTagEmailAddress                 PropID = 0x3003
	PidTagCreationTime                 PropID = 0x3007
	PidTagLastModificationTime         PropID = 0x3008
	PidTagAttachDataBinary             PropID = 0x3701
	PidTagAttachFilename               PropID = 0x3704
	PidTagAttachMethod                 PropID = 0x3705
	PidTagAttachLongFilename           PropID = 0x3707
	PidTagAttachMimeTag                PropID = 0x370E
	PidTagAttachContentID              PropID = 0x3712
	PidTagSMTPAddress                  PropID = 0x39FE
	PidTagInternetCodepage             PropID = 0x3FDE
	PidTagMessageCodepage              PropID = 0x3FFD
	PidTagSenderSMTPAddress            PropID = 0x5D01
	PidTagSentRepresentingSMTPAddress  PropID = 0x5D02
	PidTagRecipientDisplayName         PropID = 0x5FF6
	PidTagAttachmentHidden             PropID = 0x7FFE
	PidTagAttachmentContactPhoto       PropID = 0x7FFF
)

// PidTagAttachDataObject shares its ID with the binary attachment data;
// the type code tells them apart.
const PidTagAttachDataObject = PidTagAttachDataBinary

const firstNamedPropID PropID = 0x8000

// IsNamed reports whether id falls in the named-property range, whose
// meaning is only known through the __nameid_version1.0 mapping.
func (id PropID) IsNamed() bool { return id >= firstNamedPropID }

// PropTag is a 32-bit property tag: ID in the high word, type in the low word.
type PropTag uint32

// NewTag builds a tag from its halves.
func NewTag(id PropID, t PropType) PropTag {
	return PropTag(uint32(id)<<16 | uint32(t))
}

// ID returns the property identifier.
func (t PropTag) ID() PropID { return PropID(t >> 16) }

// Type returns the property type code.
func (t PropTag) Type() PropType { return PropType(t & 0xFFFF) }

func (t PropTag) String() string {
	return fmt.Sprintf("%08X", uint32(t))
}
