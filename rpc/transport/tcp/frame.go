package tcp

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/cockroachdb/errors"
)

// headerSize is shard id + request id + payload length.
const headerSize = 8 + 8 + 4

// maxFrameSize bounds the payload a peer can make us allocate.
const maxFrameSize = 64 << 20

// writeFrame writes one frame with the format:
// 8 bytes for the shard id (big endian),
// 8 bytes for the request id (big endian),
// 4 bytes for the payload length (big endian),
// N bytes payload.
func writeFrame(w io.Writer, shardID, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return errors.Newf("frame of %d bytes exceeds the limit of %d bytes", len(data), maxFrameSize)
	}

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint64(header[0:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	// header and payload in one write where the writer supports it
	bufs := net.Buffers{header, data}
	_, err := bufs.WriteTo(w)
	return err
}

// readFrame reads one frame. A clean end of stream before the header is
// returned as io.EOF.
func readFrame(r io.Reader) (shardID, requestID uint64, data []byte, err error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, 0, nil, err
	}

	shardID = binary.BigEndian.Uint64(header[0:8])
	requestID = binary.BigEndian.Uint64(header[8:16])
	length := binary.BigEndian.Uint32(header[16:20])
	if length > maxFrameSize {
		return 0, 0, nil, errors.Newf("frame of %d bytes exceeds the limit of %d bytes", length, maxFrameSize)
	}

	data = make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, 0, nil, errors.Wrap(err, "read frame payload")
	}
	return shardID, requestID, data, nil
}
