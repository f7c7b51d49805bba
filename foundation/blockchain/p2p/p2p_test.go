package p2p_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/p2p"
	"github.com/ardanlabs/ledger/foundation/blockchain/wire"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// recorder collects the messages handed to it.
type recorder struct {
	mu   sync.Mutex
	msgs []wire.Message
	got  chan struct{}
}

func (r *recorder) Handle(ctx context.Context, msg wire.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()

	r.got <- struct{}{}
	return nil
}

func Test_SendReceive(t *testing.T) {
	t.Log("Given the need to deliver messages between nodes over TCP.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen sending a version message.", testID)
		{
			rec := recorder{got: make(chan struct{}, 10)}

			srv, err := p2p.Listen("127.0.0.1:0", &rec, t.Logf)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to listen: %v", failed, testID, err)
			}
			go srv.Serve()
			defer srv.Shutdown()

			dialer := p2p.NewDialer(5*time.Second, "", "", "")

			msg := wire.Version{AddrFrom: "node2:3000", Version: wire.ProtocolVersion, BestHeight: 7}
			if err := dialer.Send(context.Background(), srv.Addr().String(), msg); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to send the message: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to send the message.", success, testID)

			select {
			case <-rec.got:
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould receive the message.", failed, testID)
			}

			rec.mu.Lock()
			got, ok := rec.msgs[0].(wire.Version)
			rec.mu.Unlock()

			if !ok || got != msg {
				t.Fatalf("\t%s\tTest %d:\tShould receive the same message, got %#v.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould receive the same message.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a peer sends a malformed frame.", testID)
		{
			rec := recorder{got: make(chan struct{}, 10)}

			srv, err := p2p.Listen("127.0.0.1:0", &rec, t.Logf)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to listen: %v", failed, testID, err)
			}
			go srv.Serve()
			defer srv.Shutdown()

			conn, err := net.Dial("tcp", srv.Addr().String())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to connect: %v", failed, testID, err)
			}
			defer conn.Close()

			frame := make([]byte, wire.CommandLength+4)
			copy(frame, "bogus")
			if _, err := conn.Write(frame); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write the frame: %v", failed, testID, err)
			}

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, err := conn.Read(make([]byte, 1)); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould close the connection.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould close the connection.", success, testID)

			dialer := p2p.NewDialer(5*time.Second, "", "", "")
			msg := wire.GetBlocks{AddrFrom: "node2:3000"}
			if err := dialer.Send(context.Background(), srv.Addr().String(), msg); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould keep accepting connections: %v", failed, testID, err)
			}

			select {
			case <-rec.got:
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould keep accepting connections.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep accepting connections.", success, testID)
		}
	}
}
