// Package clientinfo parses the Shopsync-Client request header and
// enforces a minimum client version. Storefront frontends identify
// themselves so rollouts can fence off clients that predate a breaking
// collection API change.
package clientinfo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"
)

// Header is the structured-field request header carrying the client
// identity. Format (RFC 8941 Dictionary):
//
//	Shopsync-Client: name="storefront-web", version="2.1.3"
const Header = "Shopsync-Client"

// ClientInfo identifies the calling frontend.
type ClientInfo struct {
	Name    string
	Version string // semver without the "v" prefix
}

// ParseHeader extracts the client name and version from a
// Shopsync-Client header value. Both keys are required.
func ParseHeader(header string) (ClientInfo, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ClientInfo{}, errors.New("empty Shopsync-Client header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return ClientInfo{}, fmt.Errorf("invalid Shopsync-Client header: %w", err)
	}

	name, err := stringMember(dict, "name")
	if err != nil {
		return ClientInfo{}, err
	}
	version, err := stringMember(dict, "version")
	if err != nil {
		return ClientInfo{}, err
	}

	if !semver.IsValid(canonical(version)) {
		return ClientInfo{}, fmt.Errorf("invalid client version %q", version)
	}

	return ClientInfo{Name: name, Version: version}, nil
}

// AtLeast reports whether the client version is >= min. min may carry a
// "v" prefix or not.
func (c ClientInfo) AtLeast(min string) bool {
	return semver.Compare(canonical(c.Version), canonical(min)) >= 0
}

func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", fmt.Errorf("%s key not found in Shopsync-Client header", key)
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	value, ok := item.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s value must be a string", key)
	}
	return value, nil
}

// canonical prepends the "v" semver.Compare requires.
func canonical(version string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}
