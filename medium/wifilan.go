package medium

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// WifiLanMedium stands in for the spec's Wi-Fi LAN medium: NSD
// register/discover plus TCP accept/connect, realized here over QUIC so
// a single reliable, ordered, multiplexed stream substitutes for the
// socket pair the real NSD/TCP stack would hand back. It is the
// highest-throughput entry in PreferenceOrder and the default
// bandwidth-upgrade target.
type WifiLanMedium struct {
	hostname string
}

// NewWifiLanMedium constructs the medium. hostname is used for the
// self-signed certificate's CN/SAN.
func NewWifiLanMedium(hostname string) *WifiLanMedium {
	return &WifiLanMedium{hostname: hostname}
}

func (m *WifiLanMedium) Kind() Kind { return KindWifiLAN }

func (m *WifiLanMedium) Listen(ctx context.Context) (Listener, error) {
	tlsConf, _, err := generateTLSConfig(24*time.Hour, m.hostname)
	if err != nil {
		return nil, fmt.Errorf("medium: wifilan listen: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("medium: wifilan bind: %w", err)
	}
	tr := &quic.Transport{Conn: udpConn}
	ln, err := tr.Listen(tlsConf, &quic.Config{KeepAlivePeriod: 10 * time.Second})
	if err != nil {
		_ = udpConn.Close()
		return nil, fmt.Errorf("medium: wifilan quic listen: %w", err)
	}
	return &wifiLanListener{ln: ln, transport: tr, addr: udpConn.LocalAddr().String()}, nil
}

func (m *WifiLanMedium) Dial(ctx context.Context, addr string) (Channel, error) {
	conn, err := quic.DialAddr(ctx, addr, &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"nearby-wifilan"}}, &quic.Config{KeepAlivePeriod: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("medium: wifilan dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("medium: wifilan open stream: %w", err)
	}
	return &wifiLanChannel{conn: conn, stream: stream, remoteAddr: addr}, nil
}

type wifiLanListener struct {
	ln        *quic.Listener
	transport *quic.Transport
	addr      string
}

func (l *wifiLanListener) Accept(ctx context.Context) (Channel, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream accept failed")
		return nil, err
	}
	return &wifiLanChannel{conn: conn, stream: stream, remoteAddr: conn.RemoteAddr().String()}, nil
}

func (l *wifiLanListener) Addr() string { return l.addr }

func (l *wifiLanListener) Close() error {
	err := l.ln.Close()
	_ = l.transport.Close()
	return err
}

type wifiLanChannel struct {
	conn       *quic.Conn
	stream     *quic.Stream
	remoteAddr string
}

func (c *wifiLanChannel) Read(p []byte) (int, error) {
	n, err := c.stream.Read(p)
	if err == io.EOF {
		return n, io.EOF
	}
	return n, err
}

func (c *wifiLanChannel) Write(p []byte) (int, error) { return c.stream.Write(p) }

func (c *wifiLanChannel) Close() error {
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "closed")
}

func (c *wifiLanChannel) RemoteAddr() string { return c.remoteAddr }

// FramesAreMessages is false: a QUIC stream is still a reliable ordered
// byte stream, so the wire package's length-prefix framing applies on
// top exactly as it would for a raw TCP socket.
func (c *wifiLanChannel) FramesAreMessages() bool { return false }
