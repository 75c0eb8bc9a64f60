package xmppcore

import (
	"strings"

	"github.com/pkg/errors"
)

//TODO: keep things normalized (RFC 7622 stringprep profiles)
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// ParseJID splits s into its parts.
//
// RFC 7622  3.1:
// localpart@domainpart/resourcepart, where only the domainpart is
// mandatory. The resourcepart starts at the first slash and may itself
// contain '@' and '/'.
func ParseJID(s string) (JID, error) {
	var jid JID
	rest := s
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		jid.Resource = rest[i+1:]
		rest = rest[:i]
		if jid.Resource == "" {
			return JID{}, errors.Errorf("jid %q: empty resourcepart", s)
		}
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		jid.Local = rest[:i]
		rest = rest[i+1:]
		if jid.Local == "" {
			return JID{}, errors.Errorf("jid %q: empty localpart", s)
		}
	}
	if rest == "" {
		return JID{}, errors.Errorf("jid %q: empty domainpart", s)
	}
	jid.Domain = rest
	return jid, nil
}

func (jid JID) IsEmpty() bool {
	return jid.Local == "" && jid.Domain == "" && jid.Resource == ""
}

func (jid JID) IsBare() bool {
	return jid.Domain != "" && jid.Resource == ""
}

func (jid JID) IsFull() bool {
	return jid.Domain != "" && jid.Resource != ""
}

// Bare returns the "bare JID" string.
//
// RFC 6120  1.4:
// The term "bare JID" refers to an XMPP address of the form
// <localpart@domainpart> (for an account at a server) or of the form
// <domainpart> (for a server).
func (jid JID) Bare() string {
	if jid.Local != "" {
		return jid.Local + "@" + jid.Domain
	}
	return jid.Domain
}

// Full returns the "full JID" string.
//
// RFC 6120  1.4
// The term "full JID" refers to an XMPP address of the form
// <localpart@domainpart/resourcepart> (for a particular authorized client
// or device associated with an account) or of the form
// <domainpart/resourcepart> (for a particular resource or script associated
// with a server).
func (jid JID) Full() string {
	return jid.Bare() + "/" + jid.Resource
}

// BareJID returns the JID without its resource.
func (jid JID) BareJID() JID {
	return JID{Local: jid.Local, Domain: jid.Domain}
}

// String returns the full JID when a resource is set and the bare JID
// otherwise.
func (jid JID) String() string {
	if jid.Resource == "" {
		return jid.Bare()
	}
	return jid.Full()
}

// Equal compares domains case-insensitively and the other parts exactly.
func (jid JID) Equal(other JID) bool {
	return jid.Local == other.Local &&
		strings.EqualFold(jid.Domain, other.Domain) &&
		jid.Resource == other.Resource
}

func (jid JID) MarshalText() ([]byte, error) {
	return []byte(jid.String()), nil
}

func (jid *JID) UnmarshalText(text []byte) error {
	parsed, err := ParseJID(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*jid = parsed
	return nil
}
