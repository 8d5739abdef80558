package peer_test

import (
	"errors"
	"testing"

	"github.com/powledger/node/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Register(t *testing.T) {
	type table struct {
		name    string
		address string
		host    string
		err     error
	}

	tt := []table{
		{name: "host:port", address: "127.0.0.1:8001", host: "127.0.0.1:8001"},
		{name: "url", address: "http://127.0.0.1:8002", host: "127.0.0.1:8002"},
		{name: "url with path", address: "http://node.example.com:9080/chain", host: "node.example.com:9080"},
		{name: "trailing slash", address: "127.0.0.1:8003/", host: "127.0.0.1:8003"},
		{name: "empty", address: "", err: peer.ErrInvalidAddress},
		{name: "scheme only", address: "http://", err: peer.ErrInvalidAddress},
		{name: "path", address: "a/b", err: peer.ErrInvalidAddress},
	}

	t.Log("Given the need to parse peer addresses.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s address.", testID, tst.name)
			{
				p, err := peer.Parse(tst.address)
				if !errors.Is(err, tst.err) {
					t.Fatalf("\t%s\tTest %d:\tShould get error %v, got %v.", failed, testID, tst.err, err)
				}

				if p.Host != tst.host {
					t.Logf("\t\tTest %d:\tgot: %s", testID, p.Host)
					t.Logf("\t\tTest %d:\texp: %s", testID, tst.host)
					t.Fatalf("\t%s\tTest %d:\tShould get back the network location.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould get back the network location.", success, testID)
			}
		}
	}
}

func Test_PeerSet(t *testing.T) {
	t.Log("Given the need to maintain a set of known peers.")
	{
		ps := peer.NewPeerSet()

		added, err := ps.Register("127.0.0.1:8001")
		if err != nil || !added {
			t.Fatalf("\t%s\tShould register a new peer: %v", failed, err)
		}
		t.Logf("\t%s\tShould register a new peer.", success)

		added, err = ps.Register("127.0.0.1:8001")
		if err != nil || added {
			t.Fatalf("\t%s\tShould treat re-registering as a no-op: %v", failed, err)
		}

		added, err = ps.Register("http://127.0.0.1:8001")
		if err != nil || added {
			t.Fatalf("\t%s\tShould dedupe a URL by its network location: %v", failed, err)
		}

		if ps.Len() != 1 {
			t.Fatalf("\t%s\tShould have exactly one entry, got %d.", failed, ps.Len())
		}
		t.Logf("\t%s\tShould have exactly one entry after registering twice.", success)

		if _, err := ps.Register(""); !errors.Is(err, peer.ErrInvalidAddress) {
			t.Fatalf("\t%s\tShould fail to register an empty address: %v", failed, err)
		}
		t.Logf("\t%s\tShould fail to register an empty address.", success)

		for _, host := range []string{"host3:80", "host1:80", "host2:80"} {
			ps.Add(peer.New(host))
		}

		peers := ps.Copy("host2:80")
		exp := []string{"127.0.0.1:8001", "host1:80", "host3:80"}
		if len(peers) != len(exp) {
			t.Fatalf("\t%s\tShould exclude the specified host, got %d peers.", failed, len(peers))
		}

		for i := range exp {
			if peers[i].Host != exp[i] {
				t.Logf("\t\tgot: %v", peers)
				t.Logf("\t\texp: %v", exp)
				t.Fatalf("\t%s\tShould get the peers sorted by host.", failed)
			}
		}
		t.Logf("\t%s\tShould get the other peers sorted by host.", success)
	}
}
