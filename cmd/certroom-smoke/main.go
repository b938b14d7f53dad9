// Command certroom-smoke drives a live relay through the basic protocol
// flow with two users: list rooms, create a room, join it, and exchange a
// chat message. Exits non-zero on the first mismatch. Useful as a
// post-deploy check.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"certroom/pkg/protocol"
)

var readTimeout = 5 * time.Second

type client struct {
	name string
	conn *tls.Conn
}

func dial(addr, certDir, user string, caPool *x509.CertPool) (*client, error) {
	cert, err := tls.LoadX509KeyPair(
		filepath.Join(certDir, user+".crt"),
		filepath.Join(certDir, user+".key"),
	)
	if err != nil {
		return nil, fmt.Errorf("load certificate for %s: %w", user, err)
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
	})
	if err != nil {
		return nil, fmt.Errorf("dial as %s: %w", user, err)
	}

	return &client{name: user, conn: conn}, nil
}

func (c *client) send(text string) {
	if err := protocol.WriteMessage(c.conn, text); err != nil {
		log.Fatalf("%s: send %q: %v", c.name, text, err)
	}
	log.Printf("%s -> %s", c.name, text)
}

// expect reads one message and asserts it has the given prefix.
func (c *client) expect(prefix string) string {
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := protocol.ReadMessage(c.conn)
	c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		log.Fatalf("%s: waiting for %q: %v", c.name, prefix, err)
	}
	log.Printf("%s <- %s", c.name, line)
	if !strings.HasPrefix(line, prefix) {
		log.Fatalf("%s: expected %q, got %q", c.name, prefix, line)
	}
	return line
}

func main() {
	addr := flag.String("addr", "localhost:5555", "relay address")
	certDir := flag.String("certs", "ssl", "directory holding ca.crt and <user>.crt/<user>.key pairs")
	usersFlag := flag.String("users", "alice,bob", "two usernames with issued client certificates")
	room := flag.String("room", fmt.Sprintf("smoke-%d", os.Getpid()), "room name to create for the test")
	flag.Parse()

	users := strings.Split(*usersFlag, ",")
	if len(users) != 2 {
		log.Fatalf("need exactly two users, got %q", *usersFlag)
	}

	caPEM, err := os.ReadFile(filepath.Join(*certDir, "ca.crt"))
	if err != nil {
		log.Fatalf("read CA: %v", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		log.Fatalf("no certificates in %s", filepath.Join(*certDir, "ca.crt"))
	}

	a, err := dial(*addr, *certDir, users[0], caPool)
	if err != nil {
		log.Fatal(err)
	}
	defer a.conn.Close()

	a.send(protocol.CmdGetRoomList)
	a.expect(protocol.RoomListPrefix)

	a.send(protocol.PrefixCreateRoom + *room)
	list := a.expect(protocol.RoomListPrefix)
	if !strings.Contains(list, *room) {
		log.Fatalf("room list %q does not contain %q", list, *room)
	}

	b, err := dial(*addr, *certDir, users[1], caPool)
	if err != nil {
		log.Fatal(err)
	}
	defer b.conn.Close()

	b.send(protocol.CmdGetRoomList)
	list = b.expect(protocol.RoomListPrefix)
	if !strings.Contains(list, *room) {
		log.Fatalf("%s sees room list %q without %q", b.name, list, *room)
	}

	b.send(protocol.PrefixJoinRoom + *room)
	b.expect(protocol.JoinedReply(*room))

	text := "hi there"
	a.send(text)
	b.expect(protocol.ChatLine(*room, a.name, text))

	fmt.Println("OK")
}
