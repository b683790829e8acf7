package identity

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/cadlive/livemap/pkg/core"
)

// ErrUnknownScheme is returned when no identifier carries a recognized
// scheme prefix. Such entities stay permanently telemetry-only.
var ErrUnknownScheme = errors.New("identity: no recognized identifier scheme")

// ErrMalformedToken is returned when a platform-account token is not
// valid hexadecimal.
var ErrMalformedToken = errors.New("identity: malformed platform-account token")

// Classification is the outcome of scheme classification for one frame's
// identifier set.
type Classification struct {
	Scheme core.IdentifierScheme
	// Raw is the token as carried on the wire, without the scheme prefix.
	Raw string
	// Canonical is the lookup key: for the platform-account scheme the
	// exact decimal account number, otherwise Raw unchanged.
	Canonical string
}

// schemePrecedence orders schemes for frames that carry more than one
// identifier. The platform-account scheme wins because it is the only
// one the CAD guarantees to be unique per account; the licensing key is
// next (stable per game install), the chat scheme last.
var schemePrecedence = []core.IdentifierScheme{
	core.SchemeSteam,
	core.SchemeLicense,
	core.SchemeDiscord,
}

// Classify picks the highest-precedence recognized identifier from the
// set and derives its canonical lookup form.
func Classify(identifiers []string) (Classification, error) {
	byScheme := make(map[core.IdentifierScheme]string, len(identifiers))
	for _, id := range identifiers {
		prefix, token, ok := strings.Cut(id, ":")
		if !ok || token == "" {
			continue
		}
		scheme := core.IdentifierScheme(strings.ToLower(prefix))
		if _, seen := byScheme[scheme]; !seen {
			byScheme[scheme] = token
		}
	}

	for _, scheme := range schemePrecedence {
		token, ok := byScheme[scheme]
		if !ok {
			continue
		}
		c := Classification{Scheme: scheme, Raw: token, Canonical: token}
		if scheme == core.SchemeSteam {
			canonical, err := CanonicalAccountNumber(token)
			if err != nil {
				// fall through to the next scheme rather than fail the frame
				continue
			}
			c.Canonical = canonical
		}
		return c, nil
	}

	return Classification{}, ErrUnknownScheme
}

// CanonicalAccountNumber converts a platform-account hexadecimal token
// to its exact decimal account-number form. The value routinely exceeds
// 2^53, so the conversion runs on big integers; a float64 round trip
// would silently corrupt the low digits.
func CanonicalAccountNumber(hexToken string) (string, error) {
	if hexToken == "" {
		return "", ErrMalformedToken
	}
	n, ok := new(big.Int).SetString(hexToken, 16)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("%w: %q", ErrMalformedToken, hexToken)
	}
	return n.String(), nil
}
