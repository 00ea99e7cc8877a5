/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	protocolICMP   = 1
	maxPacketBytes = 1500
)

//nolint:gochecknoglobals // process-wide echo sequence
var echoSeq atomic.Uint32

// ICMPPinger sends one echo request and waits for the matching reply.
// By default it uses an unprivileged datagram ICMP socket ("udp4"), which on
// Linux requires net.ipv4.ping_group_range to include the process group.
// Privileged mode uses a raw socket and needs CAP_NET_RAW.
type ICMPPinger struct {
	network    string
	listenAddr string
	id         int
	payload    []byte
}

// NewICMPPinger returns a pinger. privileged selects a raw socket.
func NewICMPPinger(privileged bool) *ICMPPinger {
	network := "udp4"
	if privileged {
		network = "ip4:icmp"
	}

	return &ICMPPinger{
		network:    network,
		listenAddr: "0.0.0.0",
		id:         os.Getpid() & 0xffff,
		payload:    []byte("printradar-liveness"),
	}
}

// Ping implements Pinger.
func (p *ICMPPinger) Ping(ctx context.Context, address string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip, err := resolveIPv4(ctx, address)
	if err != nil {
		return err
	}

	conn, err := icmp.ListenPacket(p.network, p.listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", p.network, err)
	}
	defer func() { _ = conn.Close() }()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	// Cancellation of the parent context unblocks the read immediately.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	seq := int(echoSeq.Add(1) & 0xffff)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: p.payload},
	}

	wire, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("marshal echo: %w", err)
	}

	if _, err := conn.WriteTo(wire, p.destination(ip)); err != nil {
		return fmt.Errorf("write echo to %s: %w", ip, err)
	}

	return p.awaitReply(ctx, conn, ip, seq)
}

func (p *ICMPPinger) destination(ip net.IP) net.Addr {
	if p.network == "udp4" {
		return &net.UDPAddr{IP: ip}
	}

	return &net.IPAddr{IP: ip}
}

func (p *ICMPPinger) awaitReply(ctx context.Context, conn *icmp.PacketConn, ip net.IP, seq int) error {
	buf := make([]byte, maxPacketBytes)

	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w from %s: %w", errNoEchoReply, ip, ctx.Err())
			}

			return fmt.Errorf("read echo reply: %w", err)
		}

		if !peerIP(peer).Equal(ip) {
			continue
		}

		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil {
			continue
		}

		switch reply.Type {
		case ipv4.ICMPTypeEchoReply:
			echo, ok := reply.Body.(*icmp.Echo)
			if !ok || echo.Seq != seq {
				continue
			}

			// Datagram sockets rewrite the identifier, so only raw sockets can check it.
			if p.network != "udp4" && echo.ID != p.id {
				continue
			}

			return nil
		case ipv4.ICMPTypeDestinationUnreachable:
			return fmt.Errorf("%w: %s", errDestUnreachable, ip)
		default:
			continue
		}
	}
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}

func resolveIPv4(ctx context.Context, address string) (net.IP, error) {
	if ip := net.ParseIP(address); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}

		return nil, fmt.Errorf("%w: %s", errNoIPv4Address, address)
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}

	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", errNoIPv4Address, address)
}
