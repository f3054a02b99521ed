// Package sketcher speaks the smART Sketcher 2.0 application protocol:
// the GATT endpoints it exposes, the command that announces an image
// upload, and the textual notifications it sends back.
//
// None of this is documented by the vendor. The wire facts here (UUIDs,
// the 8-byte command layout, the byte-reversed raster order, the OK/Done
// strings) were captured from the stock app talking to a real projector.
package sketcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/drochester/sketchlink/internal/raster"
)

const (
	// DefaultNameFilter matches the projector's advertised local name.
	// Some firmware revisions drop the version suffix, hence the substring.
	DefaultNameFilter = "smART Sketcher"

	// ServiceUUID and DataCharUUID are the single unauthenticated GATT
	// service and its write+notify characteristic.
	ServiceUUID  = "0000ffe0-0000-1000-8000-00805f9b34fb"
	DataCharUUID = "0000ffe3-0000-1000-8000-00805f9b34fb"

	// Width and Height of the projector's raster.
	Width  = 160
	Height = 120

	// DefaultChunkSize is the write size the device is known to ingest
	// reliably.
	DefaultChunkSize = 80

	// MaxChunkSize is the largest chunk size the start command can carry;
	// the size rides in a single byte.
	MaxChunkSize = 255
)

// OpSendImage is the opcode that announces an image upload on the data
// characteristic.
const OpSendImage byte = 0x01

// SendImageCommand builds the 8-byte frame that announces an upload:
// opcode, three zero bytes, the chunk size the stream will use, another
// zero, and the 0x02 0x00 tail the stock app always sends.
func SendImageCommand(chunkSize int) ([]byte, error) {
	if chunkSize < 1 || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("sketcher: chunk size %d does not fit the command byte (1..%d)", chunkSize, MaxChunkSize)
	}
	return []byte{OpSendImage, 0x00, 0x00, 0x00, byte(chunkSize), 0x00, 0x02, 0x00}, nil
}

// ImagePayload flattens enc for the wire. The projector consumes the
// raster back to front, so the whole payload is byte-reversed before
// chunking; skipping the reversal projects the image rotated by 180
// degrees.
func ImagePayload(enc *raster.Image) []byte {
	data := enc.Bytes()
	for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
		data[i], data[j] = data[j], data[i]
	}
	return data
}

// IsReady reports whether a notification is the projector's go-ahead for
// an announced upload.
func IsReady(data []byte) bool { return containsFold(data, "ok") }

// IsDone reports whether a notification is the projector's
// end-of-processing signal.
func IsDone(data []byte) bool { return containsFold(data, "done") }

// containsFold does a case-insensitive substring check on the text of a
// notification. Firmware revisions vary trailing whitespace and casing.
func containsFold(data []byte, want string) bool {
	return strings.Contains(strings.ToLower(string(data)), want)
}

// Macro resolves one line of shell input against the named-command
// table. ok is false when the first word is not a macro; err is set when
// it is a macro but its argument is unusable. Only commands confirmed
// against a real device are listed.
func Macro(line string) (payload []byte, ok bool, err error) {
	word, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch strings.ToLower(word) {
	case "sendimage":
		size := DefaultChunkSize
		if rest = strings.TrimSpace(rest); rest != "" {
			n, convErr := strconv.Atoi(rest)
			if convErr != nil {
				return nil, true, fmt.Errorf("sketcher: sendimage: chunk size %q is not a number", rest)
			}
			size = n
		}
		cmd, err := SendImageCommand(size)
		if err != nil {
			return nil, true, err
		}
		return cmd, true, nil
	}
	return nil, false, nil
}

// MacroNames lists the known macros for help output.
func MacroNames() []string {
	return []string{"sendimage"}
}
