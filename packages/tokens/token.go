package tokens

// Name identifies a tracked credential.
type Name string

// Default tracked names.
const (
	AlteonP       Name = "AlteonP"
	JSessionID    Name = "JSESSIONID"
	TS01d67e35    Name = "TS01d67e35"
	TS254a1510027 Name = "TS254a1510027"
	IXHRts        Name = "IXHRts"
	IXHRnonce     Name = "IXHRnonce"
)

// LastUpdatedKey is the credential file property holding the persist time.
const LastUpdatedKey = "last_updated"

// Source describes where a tracked token is observed.
type Source int

const (
	// SourceCookie tokens arrive in Cookie and Set-Cookie headers.
	SourceCookie Source = iota
	// SourceForm tokens arrive as form fields or in body text.
	SourceForm
)

func (s Source) String() string {
	switch s {
	case SourceCookie:
		return "cookie"
	case SourceForm:
		return "form"
	default:
		return "unknown"
	}
}

// Set is the fixed collection of tracked tokens for a process.
type Set struct {
	Cookies   []Name
	Timestamp Name
	Nonce     Name
}

// DefaultSet returns the tokens the margin application issues.
func DefaultSet() Set {
	return Set{
		Cookies:   []Name{AlteonP, JSessionID, TS01d67e35, TS254a1510027},
		Timestamp: IXHRts,
		Nonce:     IXHRnonce,
	}
}

// NewSet builds a Set from configured names.
func NewSet(cookies []string, timestamp, nonce string) Set {
	s := Set{Timestamp: Name(timestamp), Nonce: Name(nonce)}
	for _, c := range cookies {
		s.Cookies = append(s.Cookies, Name(c))
	}
	return s
}

// Names returns every tracked name, cookies first.
func (s Set) Names() []Name {
	names := make([]Name, 0, len(s.Cookies)+2)
	names = append(names, s.Cookies...)
	return append(names, s.Timestamp, s.Nonce)
}

// Dynamic returns the two per-request tokens.
func (s Set) Dynamic() []Name {
	return []Name{s.Timestamp, s.Nonce}
}

// Source reports where name is observed and whether it is tracked at all.
func (s Set) Source(name Name) (Source, bool) {
	for _, c := range s.Cookies {
		if c == name {
			return SourceCookie, true
		}
	}
	if name == s.Timestamp || name == s.Nonce {
		return SourceForm, true
	}
	return 0, false
}

// Tracked reports whether name belongs to the set.
func (s Set) Tracked(name Name) bool {
	_, ok := s.Source(name)
	return ok
}
