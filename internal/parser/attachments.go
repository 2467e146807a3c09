package parser

import (
	"errors"
	"fmt"

	"github.com/felo/msg-viewer/internal/cfb"
	"github.com/felo/msg-viewer/internal/mapi"
)

var errEmbedDepth = errors.New("embedded messages nested too deeply")

// skipAttachData leaves the attachment payload unread; only its declared
// size is reported.
func skipAttachData(rec mapi.Record) bool {
	return rec.Tag.ID() == mapi.PidTagAttachDataBinary
}

// collectAttachments decodes attachment metadata under path and recurses
// into embedded messages. Only a container failure is returned as an error.
func (r *Reader) collectAttachments(path, storages []string, cp, depth int) ([]Attachment, []Issue, error) {
	var (
		out    []Attachment
		issues []Issue
	)
	for _, c := range children(storages, mapi.AttachmentPrefix) {
		scope := fmt.Sprintf("attachment %d", c.ordinal)
		sub := cfb.Join(path, c.name)
		set, err := r.readProps(sub, mapi.KindAttachment, cp, mapi.DecodeOptions{Skip: skipAttachData})
		if errors.Is(err, ErrContainer) {
			return nil, nil, err
		}
		if err != nil {
			issues = append(issues, Issue{Scope: scope, Err: err})
			continue
		}
		issues = append(issues, scoped(scope, set.Issues())...)

		att := newAttachment(c.ordinal, set)
		if att.Method == AttachEmbeddedMessage {
			emb, err := r.decodeEmbedded(sub, depth)
			switch {
			case errors.Is(err, ErrContainer):
				return nil, nil, err
			case err != nil:
				issues = append(issues, Issue{Scope: scope, Tag: embeddedTag, Err: err})
			default:
				att.Embedded = emb
			}
		}
		out = append(out, att)
	}
	return out, issues, nil
}

var embeddedTag = mapi.NewTag(mapi.PidTagAttachDataObject, mapi.PtypObject)

func (r *Reader) decodeEmbedded(attachPath []string, depth int) (*Email, error) {
	if depth+1 > maxEmbedDepth {
		return nil, errEmbedDepth
	}
	path := cfb.Join(attachPath, mapi.StreamName(embeddedTag))
	if _, err := r.acc.OpenStorage(path...); err != nil {
		if errors.Is(err, cfb.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMissingPropertyStream, cfb.PathString(path))
		}
		return nil, fmt.Errorf("%w: %w", ErrContainer, err)
	}
	return r.decodeMessage(path, mapi.KindEmbedded, depth+1)
}

func newAttachment(ordinal int, set *mapi.PropertySet) Attachment {
	att := Attachment{
		Ordinal:      ordinal,
		Filename:     firstString(set, mapi.PidTagAttachFilename),
		LongFilename: firstString(set, mapi.PidTagAttachLongFilename),
		DisplayName:  firstString(set, mapi.PidTagDisplayName),
		MimeType:     firstString(set, mapi.PidTagAttachMimeTag),
		ContentID:    firstString(set, mapi.PidTagAttachContentID),
	}
	if n, ok := set.Int(mapi.PidTagAttachMethod); ok {
		att.Method = int(n)
	}
	if n, ok := set.Int(mapi.PidTagAttachSize); ok {
		att.Size = n
	}
	if hidden, ok := set.Bool(mapi.PidTagAttachmentHidden); ok {
		att.Hidden = hidden
	}
	if rec, ok := set.Record(mapi.PidTagAttachDataBinary); ok && rec.Tag.Type() == mapi.PtypBinary {
		att.DataSize = int64(rec.Size())
	}
	return att
}
