package wire_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/wire"
	"github.com/davecgh/go-spew/spew"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Frames(t *testing.T) {
	msgs := []wire.Message{
		wire.Version{AddrFrom: "node1:3000", Version: wire.ProtocolVersion, BestHeight: 3},
		wire.GetBlocks{AddrFrom: "node2:3000"},
		wire.Inv{AddrFrom: "node1:3000", Kind: wire.KindBlock, Items: []string{"aa", "bb"}},
		wire.GetData{AddrFrom: "node2:3000", Kind: wire.KindTx, ID: "cc"},
		wire.Addr{AddrFrom: "node1:3000", Peers: []string{"node3:3000"}},
	}

	t.Log("Given the need to exchange messages over a stream.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen several frames are written back to back.", testID)
		{
			var buf bytes.Buffer
			for _, msg := range msgs {
				if err := wire.Encode(&buf, msg); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to encode %s: %v", failed, testID, msg.Command(), err)
				}
			}

			tag := string(bytes.TrimRight(buf.Bytes()[:wire.CommandLength], "\x00"))
			if tag != wire.CmdVersion {
				t.Fatalf("\t%s\tTest %d:\tShould start with the padded command tag, got %q.", failed, testID, tag)
			}
			t.Logf("\t%s\tTest %d:\tShould start with the padded command tag.", success, testID)

			for _, exp := range msgs {
				got, err := wire.Decode(&buf)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to decode %s: %v", failed, testID, exp.Command(), err)
				}

				if spew.Sdump(got) != spew.Sdump(exp) {
					t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, spew.Sdump(got))
					t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, spew.Sdump(exp))
					t.Fatalf("\t%s\tTest %d:\tShould get back the same message.", failed, testID)
				}

				if wire.From(got) == "" {
					t.Fatalf("\t%s\tTest %d:\tShould report the sender of %s.", failed, testID, got.Command())
				}
			}
			t.Logf("\t%s\tTest %d:\tShould get back every message in order.", success, testID)

			if _, err := wire.Decode(&buf); !errors.Is(err, io.EOF) {
				t.Fatalf("\t%s\tTest %d:\tShould get io.EOF at the end of the stream: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get io.EOF at the end of the stream.", success, testID)
		}
	}
}

func Test_MalformedFrames(t *testing.T) {
	frame := func(cmd string, payload string, size uint32) []byte {
		b := make([]byte, wire.CommandLength)
		copy(b, cmd)
		b = binary.BigEndian.AppendUint32(b, size)
		return append(b, payload...)
	}

	type table struct {
		name string
		data []byte
	}

	tt := []table{
		{name: "unknown-command", data: frame("bogus", "{}", 2)},
		{name: "bad-json", data: frame(wire.CmdVersion, "{nope", 5)},
		{name: "short-payload", data: frame(wire.CmdInv, "{}", 10)},
		{name: "short-header", data: []byte("vers")},
		{name: "too-large", data: frame(wire.CmdBlock, "", wire.MaxPayload+1)},
	}

	t.Log("Given the need to reject malformed frames.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				_, err := wire.Decode(bytes.NewReader(tst.data))
				if !wire.IsDeserializationError(err) {
					t.Fatalf("\t%s\tTest %d:\tShould get a deserialization error: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get a deserialization error.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}
