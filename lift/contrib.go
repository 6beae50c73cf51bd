// Contributor-map handling: translating CVS login names into DVCS-style
// identities.  The map file format is the one the rest of the tool
// family uses:
//
//	login = Full Name <email> [timezone]
//
// with #-comment and blank lines ignored.

// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	fqme "gitlab.com/esr/fqme"
)

// Contributor associates a login name with a DVCS-style identity.
type Contributor struct {
	name     string
	fullname string
	email    string
	tz       string
}

// ContribMap is the identity lookup table, keyed by login.
type ContribMap map[string]Contributor

var contribmap ContribMap

var contribLineRE = regexp.MustCompile(`^([^ ]+) *= *([^<]*)<([^>]+)> *(.*)$`)

// NewContribMap reads a contributor map from a file.
func NewContribMap(fn string) (ContribMap, error) {
	file, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cm := make(ContribMap)
	lineno := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		groups := contribLineRE.FindStringSubmatch(line)
		if groups == nil {
			return nil, fmt.Errorf("%s:%d: ill-formed map line", fn, lineno)
		}
		v := Contributor{
			name:     groups[1],
			fullname: strings.Trim(groups[2], " \t"),
			email:    groups[3],
			tz:       strings.TrimSpace(groups[4]),
		}
		cm[v.name] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cm, nil
}

// Has reports whether a login can be resolved.  Safe on a nil map.
func (cm ContribMap) Has(name string) bool {
	_, ok := cm[name]
	return ok
}

// Resolve maps a login to (display name, email).  Unmapped logins pass
// through as-is; strict mode will have aborted the run before this can
// matter.
func (cm ContribMap) Resolve(login string) (string, string) {
	if item, ok := cm[login]; ok {
		return item.fullname, item.email
	}
	return login, login
}

// Suffix completes bare usernames in the email field with a host part.
func (cm ContribMap) Suffix(addr string) {
	for k, obj := range cm {
		if !strings.Contains(obj.email, "@") {
			obj.email += "@" + addr
			cm[k] = obj
		}
	}
}

// whoami asks the usual places who is running the conversion; used to
// seed stub map files with at least one well-formed entry.
func whoami() (string, string) {
	name, email, err := fqme.WhoAmI()
	if err == nil {
		return name, email
	}
	return "Firstname Lastname", "email@example.com"
}

// end
