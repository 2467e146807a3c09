package parser

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/felo/msg-viewer/internal/cfb"
	"github.com/felo/msg-viewer/internal/mapi"
)

type child struct {
	ordinal int
	name    string
}

// children picks the storages named prefix + 8 hex digits and orders them by
// that ordinal, never by the order the container lists them in.
func children(names []string, prefix string) []child {
	var out []child
	for _, name := range names {
		if n, ok := mapi.ParseOrdinal(name, prefix); ok {
			out = append(out, child{ordinal: n, name: name})
		}
	}
	slices.SortStableFunc(out, func(a, b child) int { return cmp.Compare(a.ordinal, b.ordinal) })
	return out
}

// collectRecipients decodes every recipient storage under path. A recipient
// whose property set cannot be decoded is dropped with an issue.
func (r *Reader) collectRecipients(path, storages []string, cp int) ([]Recipient, []Issue) {
	var (
		out    []Recipient
		issues []Issue
	)
	for _, c := range children(storages, mapi.RecipientPrefix) {
		scope := fmt.Sprintf("recipient %d", c.ordinal)
		set, err := r.readProps(cfb.Join(path, c.name), mapi.KindRecipient, cp, mapi.DecodeOptions{})
		if err != nil {
			issues = append(issues, Issue{Scope: scope, Err: err})
			continue
		}
		issues = append(issues, scoped(scope, set.Issues())...)
		out = append(out, newRecipient(c.ordinal, set))
	}
	return out, issues
}

func newRecipient(ordinal int, set *mapi.PropertySet) Recipient {
	rc := Recipient{
		Ordinal: ordinal,
		Kind:    recipientKind(set),
		Name:    firstString(set, mapi.PidTagDisplayName, mapi.PidTagRecipientDisplayName),
		Address: firstString(set, mapi.PidTagSMTPAddress, mapi.PidTagEmailAddress),
		Props:   set,
	}
	rc.AddressType, _ = set.String(mapi.PidTagAddressType)
	return rc
}

// recipientKind reads PR_RECIPIENT_TYPE. The high bits carry flags such as
// MAPI_SUBMITTED; unknown or missing types count as To.
func recipientKind(set *mapi.PropertySet) RecipientKind {
	t, ok := set.Int(mapi.PidTagRecipientType)
	if !ok {
		return RecipientTo
	}
	switch t & 0xFF {
	case 2:
		return RecipientCc
	case 3:
		return RecipientBcc
	}
	return RecipientTo
}
