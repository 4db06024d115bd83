package animation

import (
	"bytes"
	"fmt"
)

// loopExtension is the NETSCAPE2.0 application extension telling viewers to
// repeat the animation forever (loop count 0).
var loopExtension = []byte{
	0x21, 0xff, 0x0b, // extension introducer, application label, block size
	'N', 'E', 'T', 'S', 'C', 'A', 'P', 'E', '2', '.', '0',
	0x03, 0x01, 0x00, 0x00, // sub-block size, sub-block id, loop count (little endian)
	0x00, // block terminator
}

// loopOffset is where the extension must sit: after the 6-byte signature and
// the 7-byte logical screen descriptor. The encoder is configured to emit no
// global colour table, so the first block starts here.
const loopOffset = 13

// LoopExtension returns a copy of the 19-byte loop-forever block.
func LoopExtension() []byte {
	return append([]byte(nil), loopExtension...)
}

// spliceLoopExtension inserts the loop block at loopOffset.
func spliceLoopExtension(gif []byte) ([]byte, error) {
	if len(gif) < loopOffset || !bytes.HasPrefix(gif, []byte("GIF8")) {
		return nil, fmt.Errorf("not a GIF stream (%d bytes)", len(gif))
	}
	if gif[10]&0x80 != 0 {
		return nil, fmt.Errorf("GIF stream has a global colour table; loop block cannot go at offset %d", loopOffset)
	}
	out := make([]byte, 0, len(gif)+len(loopExtension))
	out = append(out, gif[:loopOffset]...)
	out = append(out, loopExtension...)
	return append(out, gif[loopOffset:]...), nil
}
