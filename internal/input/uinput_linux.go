//go:build linux

package input

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"deskxr/internal/types"

	"golang.org/x/sys/unix"
)

// uinput ioctls and event codes from linux/uinput.h and input-event-codes.h.
const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiSetAbsBit  = 0x40045567
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport = 0

	relHWheel = 0x06
	relWheel  = 0x08

	absX = 0x00
	absY = 0x01

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112

	maxKeyCode = 248
	busVirtual = 0x06

	// absExtent is the absolute axis range the desktop is scaled to.
	absExtent = 32768
)

// Uinput injects events through a virtual absolute pointer and keyboard
// device. The compositor sees it as real hardware, so it works under both
// X11 and Wayland.
type Uinput struct {
	fd int

	mu      sync.Mutex
	extentW float64
	extentH float64
	wheelY  float64
	wheelX  float64
	buf     bytes.Buffer
}

// NewUinput creates the virtual device. width and height are the logical
// desktop extent used when no SetDesktopExtent call has been made.
func NewUinput(path string, width, height float64) (*Uinput, error) {
	if path == "" {
		path = "/dev/uinput"
	}
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	u := &Uinput{fd: fd, extentW: width, extentH: height}
	if err := u.setup(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return u, nil
}

func (u *Uinput) setup() error {
	for _, ev := range []int{evSyn, evKey, evRel, evAbs} {
		if err := unix.IoctlSetInt(u.fd, uiSetEvBit, ev); err != nil {
			return fmt.Errorf("UI_SET_EVBIT %d: %w", ev, err)
		}
	}
	for code := 1; code <= maxKeyCode; code++ {
		if err := unix.IoctlSetInt(u.fd, uiSetKeyBit, code); err != nil {
			return fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}
	for _, code := range []int{btnLeft, btnRight, btnMiddle} {
		if err := unix.IoctlSetInt(u.fd, uiSetKeyBit, code); err != nil {
			return fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}
	for _, code := range []int{relWheel, relHWheel} {
		if err := unix.IoctlSetInt(u.fd, uiSetRelBit, code); err != nil {
			return fmt.Errorf("UI_SET_RELBIT %d: %w", code, err)
		}
	}
	for _, code := range []int{absX, absY} {
		if err := unix.IoctlSetInt(u.fd, uiSetAbsBit, code); err != nil {
			return fmt.Errorf("UI_SET_ABSBIT %d: %w", code, err)
		}
	}

	// Legacy struct uinput_user_dev, written once before UI_DEV_CREATE.
	var dev struct {
		Name         [80]byte
		Bustype      uint16
		Vendor       uint16
		Product      uint16
		Version      uint16
		FFEffectsMax uint32
		AbsMax       [64]int32
		AbsMin       [64]int32
		AbsFuzz      [64]int32
		AbsFlat      [64]int32
	}
	copy(dev.Name[:], "deskxr virtual input")
	dev.Bustype = busVirtual
	dev.Vendor = 0x1209
	dev.Product = 0xd0c5
	dev.Version = 1
	dev.AbsMax[absX] = absExtent
	dev.AbsMax[absY] = absExtent

	var b bytes.Buffer
	if err := binary.Write(&b, binary.NativeEndian, &dev); err != nil {
		return err
	}
	if _, err := unix.Write(u.fd, b.Bytes()); err != nil {
		return fmt.Errorf("write uinput_user_dev: %w", err)
	}
	if err := unix.IoctlSetInt(u.fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("UI_DEV_CREATE: %w", err)
	}
	return nil
}

func (u *Uinput) SetDesktopExtent(width, height float64) {
	u.mu.Lock()
	u.extentW, u.extentH = width, height
	u.mu.Unlock()
}

func (u *Uinput) Inject(ev types.InputEvent) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.buf.Reset()

	switch ev.Type {
	case types.EventPointerMove:
		if u.extentW <= 0 || u.extentH <= 0 {
			return fmt.Errorf("uinput: desktop extent unknown")
		}
		u.put(evAbs, absX, scaleAbs(ev.X, u.extentW))
		u.put(evAbs, absY, scaleAbs(ev.Y, u.extentH))
	case types.EventButtonDown, types.EventButtonUp:
		u.put(evKey, evdevButton(ev.Button), pressed(ev.Type == types.EventButtonDown))
	case types.EventKeyDown, types.EventKeyUp:
		if ev.KeyCode == 0 || ev.KeyCode > maxKeyCode {
			return fmt.Errorf("uinput: key code %d out of range", ev.KeyCode)
		}
		u.put(evKey, ev.KeyCode, pressed(ev.Type == types.EventKeyDown))
	case types.EventScroll:
		// One wheel notch per WheelStep of accumulated delta; wheel up is
		// positive in evdev and negative DY.
		u.wheelY -= ev.DY
		u.wheelX += ev.DX
		if n := notches(&u.wheelY); n != 0 {
			u.put(evRel, relWheel, n)
		}
		if n := notches(&u.wheelX); n != 0 {
			u.put(evRel, relHWheel, n)
		}
		if u.buf.Len() == 0 {
			return nil
		}
	default:
		return nil
	}
	u.put(evSyn, synReport, 0)
	if _, err := unix.Write(u.fd, u.buf.Bytes()); err != nil {
		return fmt.Errorf("uinput write: %w", err)
	}
	return nil
}

// put appends one struct input_event.
func (u *Uinput) put(typ, code uint16, value int32) {
	var ev struct {
		Sec   int64
		Usec  int64
		Type  uint16
		Code  uint16
		Value int32
	}
	ev.Type, ev.Code, ev.Value = typ, code, value
	binary.Write(&u.buf, binary.NativeEndian, &ev)
}

func (u *Uinput) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fd < 0 {
		return
	}
	unix.IoctlSetInt(u.fd, uiDevDestroy, 0)
	unix.Close(u.fd)
	u.fd = -1
}

func scaleAbs(v, extent float64) int32 {
	s := math.Round(v / extent * absExtent)
	return int32(math.Max(0, math.Min(absExtent, s)))
}

func notches(accum *float64) int32 {
	n := math.Trunc(*accum / types.WheelStep)
	*accum -= n * types.WheelStep
	return int32(n)
}

func pressed(down bool) int32 {
	if down {
		return 1
	}
	return 0
}

func evdevButton(b int) uint16 {
	switch b {
	case types.ButtonMiddle:
		return btnMiddle
	case types.ButtonRight:
		return btnRight
	}
	return btnLeft
}
