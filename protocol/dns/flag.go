// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dns

import (
	"strings"

	"github.com/spf13/pflag"
)

// PointerModeFlag is a pflag.Value implementation that stores a PointerMode.
type PointerModeFlag PointerMode

var _ pflag.Value = (*PointerModeFlag)(nil)

func (pf *PointerModeFlag) String() string { return PointerMode(*pf).String() }

// Set implements pflag.Value.
func (pf *PointerModeFlag) Set(v string) error {
	pm, err := ParsePointerMode(v)
	if err != nil {
		return err
	}
	*pf = PointerModeFlag(pm)
	return nil
}

// Type implements pflag.Value.
func (pf *PointerModeFlag) Type() string { return "dns.PointerMode" }

// Value returns the PointerMode held by this flag.
func (pf PointerModeFlag) Value() PointerMode { return PointerMode(pf) }

// PointerModeFlagValues returns the list of possible values for a
// PointerModeFlag.
func PointerModeFlagValues() string {
	return strings.Join([]string{LegacyPointers.String(), RFC1035Pointers.String()}, ", ")
}
