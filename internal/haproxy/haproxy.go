// Package haproxy encodes the PROXY protocol v1 (text) and v2 (binary)
// headers that the edge tunnel listener optionally writes to the
// target-facing half of a connection before splicing it, so the private target
// sees the true public client address instead of the edge's own.
//
// Only IPv4 is supported, matching the source this was distilled from:
// an IPv6 address on either side is a ProtocolError, not a silent
// downgrade to PROXY UNKNOWN.
package haproxy

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ErrNotIPv4 is returned when EncodeV1 or EncodeV2 is asked to encode an
// address that is not a 4-byte IPv4 address.
var ErrNotIPv4 = fmt.Errorf("haproxy: only IPv4 addresses are supported")

// EncodeV1 renders the PROXY protocol v1 text header for a TCP4
// connection from src to dst:
//
//	PROXY TCP4 <src_ip> <dst_ip> <src_port> <dst_port>\r\n
func EncodeV1(src, dst *net.TCPAddr) ([]byte, error) {
	srcIP := src.IP.To4()
	dstIP := dst.IP.To4()
	if srcIP == nil || dstIP == nil {
		return nil, ErrNotIPv4
	}
	return []byte(fmt.Sprintf("PROXY TCP4 %s %s %d %d\r\n", srcIP.String(), dstIP.String(), src.Port, dst.Port)), nil
}

// v2Signature is the 4-byte signature used by this implementation. The
// canonical HAProxy v2 signature is the 12-byte
// `0D 0A 0D 0A 00 0D 0A 51 55 49 54 0A`; this repo reproduces the 4-byte
// variant found in the system it was distilled from (see spec's Open
// Questions). Peers expecting the canonical 12-byte signature will not
// recognize this header.
var v2Signature = [4]byte{0x0D, 0x0A, 0x0D, 0x0A}

const (
	v2VersionCommand   = 0x21 // version 2, command PROXY
	v2FamilyProtocol   = 0x11 // AF_INET, SOCK_STREAM
	v2AddressBlockSize = 0x000C
)

// EncodeV2 renders the fixed 20-byte PROXY protocol v2 binary header for
// an IPv4/TCP connection from src to dst. See spec.md §4.5 and §8
// invariant 9 for the exact byte layout this must produce.
func EncodeV2(src, dst *net.TCPAddr) ([]byte, error) {
	srcIP := src.IP.To4()
	dstIP := dst.IP.To4()
	if srcIP == nil || dstIP == nil {
		return nil, ErrNotIPv4
	}

	buf := make([]byte, 20)
	copy(buf[0:4], v2Signature[:])
	buf[4] = v2VersionCommand
	buf[5] = v2FamilyProtocol
	binary.BigEndian.PutUint16(buf[6:8], v2AddressBlockSize)
	copy(buf[8:12], srcIP)
	copy(buf[12:16], dstIP)
	binary.BigEndian.PutUint16(buf[16:18], uint16(src.Port))
	binary.BigEndian.PutUint16(buf[18:20], uint16(dst.Port))
	return buf, nil
}
