//go:build linux && cgo

package input

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

static Display* xtest_open(const char *display_name) {
	return XOpenDisplay(display_name);
}

static int xtest_move(Display *d, int x, int y) {
	int ok = XTestFakeMotionEvent(d, -1, x, y, CurrentTime);
	XFlush(d);
	return ok;
}

static int xtest_button(Display *d, unsigned int button, int press) {
	int ok = XTestFakeButtonEvent(d, button, press, CurrentTime);
	XFlush(d);
	return ok;
}

static int xtest_click(Display *d, unsigned int button, int times) {
	int ok = 1;
	for (int i = 0; i < times && ok; i++) {
		ok = XTestFakeButtonEvent(d, button, True, CurrentTime) &&
		     XTestFakeButtonEvent(d, button, False, CurrentTime);
	}
	XFlush(d);
	return ok;
}

// X keycodes are evdev codes offset by 8 under the evdev and libinput drivers.
static int xtest_key(Display *d, unsigned int evdev, int press) {
	int ok = XTestFakeKeyEvent(d, evdev + 8, press, CurrentTime);
	XFlush(d);
	return ok;
}
*/
import "C"
import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"deskxr/internal/types"
)

// XTest injects through the XTEST extension of an X server. Pointer
// positions are root window pixels, which are the logical desktop pixels on
// X11.
type XTest struct {
	mu      sync.Mutex
	display *C.Display
	wheelX  float64
	wheelY  float64
}

func NewXTest(displayName string) (*XTest, error) {
	cDisplay := C.CString(displayName)
	defer C.free(unsafe.Pointer(cDisplay))

	d := C.xtest_open(cDisplay)
	if d == nil {
		return nil, fmt.Errorf("failed to open display for input: %s", displayName)
	}
	return &XTest{display: d}, nil
}

func (x *XTest) Inject(ev types.InputEvent) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.display == nil {
		return ErrSinkUnavailable
	}

	var ok C.int = 1
	switch ev.Type {
	case types.EventPointerMove:
		ok = C.xtest_move(x.display, C.int(ev.X), C.int(ev.Y))
	case types.EventButtonDown, types.EventButtonUp:
		ok = C.xtest_button(x.display, C.uint(x11Button(ev.Button)), boolInt(ev.Type == types.EventButtonDown))
	case types.EventScroll:
		// Buttons 4/5 scroll up/down, 6/7 left/right.
		x.wheelY += ev.DY
		x.wheelX += ev.DX
		if n := wheelNotches(&x.wheelY); n != 0 {
			ok = C.xtest_click(x.display, C.uint(pick(n < 0, 4, 5)), C.int(abs(n)))
		}
		if n := wheelNotches(&x.wheelX); n != 0 && ok != 0 {
			ok = C.xtest_click(x.display, C.uint(pick(n < 0, 6, 7)), C.int(abs(n)))
		}
	case types.EventKeyDown, types.EventKeyUp:
		if ev.KeyCode == 0 {
			return fmt.Errorf("xtest: event without key code")
		}
		ok = C.xtest_key(x.display, C.uint(ev.KeyCode), boolInt(ev.Type == types.EventKeyDown))
	}
	if ok == 0 {
		return fmt.Errorf("xtest: %s rejected", ev.Type)
	}
	return nil
}

func (x *XTest) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.display != nil {
		C.XCloseDisplay(x.display)
		x.display = nil
	}
}

func x11Button(b int) int {
	switch b {
	case types.ButtonMiddle:
		return 2
	case types.ButtonRight:
		return 3
	}
	return 1
}

func wheelNotches(accum *float64) int {
	n := math.Trunc(*accum / types.WheelStep)
	*accum -= n * types.WheelStep
	return int(n)
}

func boolInt(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func pick(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
