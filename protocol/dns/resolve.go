// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dns

import (
	"encoding/binary"
	"net"
)

// Resolution maps a name observed in a message to an IPv4 address.
type Resolution struct {
	Name string
	IP   net.IP
}

// Resolve returns the name-to-address mappings asserted by m's answers, in
// answer order.
//
// Each A record yields its own mapping. Each CNAME record yields a mapping
// from its owner name to the address of every A record in m whose name is the
// CNAME target. CNAME chains are followed for one hop only.
func Resolve(m *Message) []Resolution {
	var res []Resolution
	for _, a := range m.Answers {
		switch {
		case a.Type.Is("A"):
			if a.IP != nil {
				res = append(res, Resolution{Name: a.Name, IP: a.IP})
			}

		case a.Type.Is("CNAME"):
			if a.CName == nil {
				continue
			}
			for _, target := range m.Answers {
				if target.Type.Is("A") && target.IP != nil && target.Name == *a.CName {
					res = append(res, Resolution{Name: a.Name, IP: target.IP})
				}
			}
		}
	}
	return res
}

// IPToUint32 returns the big-endian integer form of an IPv4 address, or 0 if
// ip is not an IPv4 address.
func IPToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}
