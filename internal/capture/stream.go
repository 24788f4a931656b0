package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"deskxr/internal/types"

	"github.com/rs/zerolog"
)

// Stream framing used by external capture bridges:
//
//	magic "DXRF" | version u16 | format u16 | width u32 | height u32 |
//	stride u32 | seq u64 | timestamp ns i64 | stride*height pixel bytes
//
// All integers are big-endian.
const (
	streamMagic   = "DXRF"
	streamVersion = 1
	headerSize    = 36

	// 8K BGRA.
	maxFrameBytes = 7680 * 4320 * 4
)

// WriteFrame writes one frame in stream framing.
func WriteFrame(w io.Writer, f *types.Frame) error {
	if err := validate(f); err != nil {
		return err
	}
	size := f.Stride * f.Height
	if size > maxFrameBytes {
		return fmt.Errorf("frame too large: %d > %d", size, maxFrameBytes)
	}
	var hdr [headerSize]byte
	copy(hdr[0:4], streamMagic)
	binary.BigEndian.PutUint16(hdr[4:6], streamVersion)
	binary.BigEndian.PutUint16(hdr[6:8], uint16(f.Format))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(f.Width))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(f.Height))
	binary.BigEndian.PutUint32(hdr[16:20], uint32(f.Stride))
	binary.BigEndian.PutUint64(hdr[20:28], f.Seq)
	binary.BigEndian.PutUint64(hdr[28:36], uint64(f.Timestamp.UnixNano()))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(f.Data) < size {
		// Last row may be short of a full stride.
		if _, err := w.Write(f.Data); err != nil {
			return err
		}
		_, err := w.Write(make([]byte, size-len(f.Data)))
		return err
	}
	_, err := w.Write(f.Data[:size])
	return err
}

// ReadFrame reads one frame in stream framing.
func ReadFrame(r io.Reader) (*types.Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != streamMagic {
		return nil, fmt.Errorf("bad stream magic %q", hdr[0:4])
	}
	if v := binary.BigEndian.Uint16(hdr[4:6]); v != streamVersion {
		return nil, fmt.Errorf("unsupported stream version %d", v)
	}
	format := types.PixelFormat(binary.BigEndian.Uint16(hdr[6:8]))
	if format != types.PixFmtBGRA && format != types.PixFmtRGBA {
		return nil, fmt.Errorf("unsupported pixel format %d", format)
	}
	f := &types.Frame{
		Format:    format,
		Width:     int(binary.BigEndian.Uint32(hdr[8:12])),
		Height:    int(binary.BigEndian.Uint32(hdr[12:16])),
		Stride:    int(binary.BigEndian.Uint32(hdr[16:20])),
		Seq:       binary.BigEndian.Uint64(hdr[20:28]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(hdr[28:36]))),
	}
	if f.Width <= 0 || f.Height <= 0 || f.Width > maxFrameBytes/4 || f.Stride < f.Width*4 {
		return nil, fmt.Errorf("invalid frame geometry %dx%d stride %d", f.Width, f.Height, f.Stride)
	}
	// Bound each factor so the product cannot overflow.
	if f.Stride > maxFrameBytes || f.Height > maxFrameBytes/f.Stride {
		return nil, fmt.Errorf("invalid frame length: %dx%d", f.Stride, f.Height)
	}
	f.Data = make([]byte, f.Stride*f.Height)
	if _, err := io.ReadFull(r, f.Data); err != nil {
		return nil, err
	}
	return f, nil
}

// StreamSource accepts capture bridge connections on a TCP address, one at a
// time. Bridges number frames from 1 on every connection, so sequence numbers
// are rebased onto the feed's current sequence when a bridge connects.
type StreamSource struct {
	addr string
	log  zerolog.Logger

	ln net.Listener
}

func NewStreamSource(addr string, log zerolog.Logger) *StreamSource {
	return &StreamSource{addr: addr, log: log.With().Str("component", "capture-stream").Logger()}
}

func (s *StreamSource) Name() string { return "stream:" + s.addr }

// Listen binds the address early so callers can learn the port. Run calls it
// if needed.
func (s *StreamSource) Listen() (net.Addr, error) {
	if s.ln != nil {
		return s.ln.Addr(), nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", s.addr, err)
	}
	s.ln = ln
	return ln.Addr(), nil
}

func (s *StreamSource) Run(ctx context.Context, feed *Feed) error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	s.log.Info().Str("addr", s.ln.Addr().String()).Str("feed", feed.Name()).Msg("waiting for capture bridge")

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.serve(ctx, conn, feed)
	}
}

func (s *StreamSource) serve(ctx context.Context, conn net.Conn, feed *Feed) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	base := feed.Seq()
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Info().Uint64("base_seq", base).Msg("capture bridge connected")

	var frames, stale int
	for {
		f, err := ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn().Err(err).Msg("stream read failed")
			}
			log.Info().Int("frames", frames).Int("stale", stale).Msg("capture bridge disconnected")
			return
		}
		f.Seq += base
		switch err := feed.Push(f); {
		case err == nil:
			frames++
		case errors.Is(err, ErrStaleFrame):
			stale++
		case errors.Is(err, ErrFeedClosed):
			return
		default:
			log.Debug().Err(err).Uint64("seq", f.Seq).Msg("frame rejected")
		}
	}
}
