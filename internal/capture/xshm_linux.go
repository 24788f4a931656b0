//go:build linux && cgo

package capture

/*
#cgo pkg-config: x11 xext xfixes
#include <X11/Xlib.h>
#include <X11/Xutil.h>
#include <X11/extensions/XShm.h>
#include <X11/extensions/Xfixes.h>
#include <sys/ipc.h>
#include <sys/shm.h>
#include <stdlib.h>

typedef struct {
	Display *display;
	Window root;
	XShmSegmentInfo shminfo;
	XImage *image;
	int x, y;
	int width, height;
} xshm_region;

// A zero width or height captures the whole root window from (x, y).
static xshm_region* xshm_open(const char *display_name, int x, int y, int w, int h) {
	xshm_region *r = (xshm_region*)calloc(1, sizeof(xshm_region));
	if (!r) return NULL;

	r->display = XOpenDisplay(display_name);
	if (!r->display) { free(r); return NULL; }

	int screen = DefaultScreen(r->display);
	r->root = RootWindow(r->display, screen);
	int sw = DisplayWidth(r->display, screen);
	int sh = DisplayHeight(r->display, screen);
	if (w <= 0 || h <= 0) { w = sw - x; h = sh - y; }
	if (x < 0 || y < 0 || w <= 0 || h <= 0 || x + w > sw || y + h > sh) {
		XCloseDisplay(r->display);
		free(r);
		return NULL;
	}
	r->x = x; r->y = y; r->width = w; r->height = h;

	r->image = XShmCreateImage(r->display, DefaultVisual(r->display, screen),
		DefaultDepth(r->display, screen), ZPixmap, NULL, &r->shminfo, w, h);
	if (!r->image) {
		XCloseDisplay(r->display);
		free(r);
		return NULL;
	}

	r->shminfo.shmid = shmget(IPC_PRIVATE, r->image->bytes_per_line * r->image->height, IPC_CREAT | 0600);
	if (r->shminfo.shmid < 0) {
		XDestroyImage(r->image);
		XCloseDisplay(r->display);
		free(r);
		return NULL;
	}
	r->shminfo.shmaddr = r->image->data = (char*)shmat(r->shminfo.shmid, NULL, 0);
	r->shminfo.readOnly = False;
	if (!XShmAttach(r->display, &r->shminfo)) {
		shmdt(r->shminfo.shmaddr);
		shmctl(r->shminfo.shmid, IPC_RMID, NULL);
		XDestroyImage(r->image);
		XCloseDisplay(r->display);
		free(r);
		return NULL;
	}
	// Removed once the last attachment goes away.
	shmctl(r->shminfo.shmid, IPC_RMID, NULL);
	return r;
}

// Returns 1 when the root window no longer matches the region's screen size.
static int xshm_grab(xshm_region *r) {
	XWindowAttributes attr;
	if (XGetWindowAttributes(r->display, r->root, &attr) &&
		(r->x + r->width > attr.width || r->y + r->height > attr.height)) {
		return 1;
	}
	if (!XShmGetImage(r->display, r->root, r->image, r->x, r->y, AllPlanes)) {
		return -1;
	}
	XSync(r->display, False);
	return 0;
}

static void xshm_cursor(xshm_region *r) {
	XFixesCursorImage *cur = XFixesGetCursorImage(r->display);
	if (!cur) return;

	int ox = cur->x - cur->xhot - r->x;
	int oy = cur->y - cur->yhot - r->y;
	for (int cy = 0; cy < (int)cur->height; cy++) {
		int dy = oy + cy;
		if (dy < 0 || dy >= r->height) continue;
		for (int cx = 0; cx < (int)cur->width; cx++) {
			int dx = ox + cx;
			if (dx < 0 || dx >= r->width) continue;
			unsigned long px = cur->pixels[cy * cur->width + cx];
			unsigned int a = (px >> 24) & 0xFF;
			if (a == 0) continue;
			unsigned char *dst = (unsigned char*)r->image->data + dy * r->image->bytes_per_line + dx * 4;
			// Cursor pixels are premultiplied ARGB.
			dst[0] = (unsigned char)((px & 0xFF) + dst[0] * (255 - a) / 255);
			dst[1] = (unsigned char)(((px >> 8) & 0xFF) + dst[1] * (255 - a) / 255);
			dst[2] = (unsigned char)(((px >> 16) & 0xFF) + dst[2] * (255 - a) / 255);
		}
	}
	XFree(cur);
}

static void xshm_close(xshm_region *r) {
	if (!r) return;
	XShmDetach(r->display, &r->shminfo);
	shmdt(r->shminfo.shmaddr);
	XDestroyImage(r->image);
	XCloseDisplay(r->display);
	free(r);
}
*/
import "C"
import (
	"errors"
	"fmt"
	"unsafe"

	"deskxr/internal/geom"
	"deskxr/internal/types"
)

var errDisplayResized = errors.New("display resized")

// xshmRegion grabs one rectangle of an X11 root window through shared
// memory, with the cursor composited in.
type xshmRegion struct {
	r *C.xshm_region
}

// OpenXShm opens a capturer for rect on displayName. An empty rect captures
// the whole screen.
func OpenXShm(displayName string, rect geom.Rect) (types.MediaCapturer, error) {
	cDisplay := C.CString(displayName)
	defer C.free(unsafe.Pointer(cDisplay))

	r := C.xshm_open(cDisplay, C.int(rect.X), C.int(rect.Y), C.int(rect.W), C.int(rect.H))
	if r == nil {
		return nil, fmt.Errorf("xshm capture of %v on %q unavailable", rect, displayName)
	}
	return &xshmRegion{r: r}, nil
}

func (c *xshmRegion) Width() int  { return int(c.r.width) }
func (c *xshmRegion) Height() int { return int(c.r.height) }

// Grab copies the shared segment out, so the frame stays valid after the
// next grab.
func (c *xshmRegion) Grab() (*types.Frame, error) {
	switch C.xshm_grab(c.r) {
	case 1:
		return nil, errDisplayResized
	case -1:
		return nil, fmt.Errorf("XShmGetImage failed")
	}
	C.xshm_cursor(c.r)

	stride := int(c.r.image.bytes_per_line)
	h := int(c.r.height)
	return &types.Frame{
		Data:   C.GoBytes(unsafe.Pointer(c.r.image.data), C.int(stride*h)),
		Width:  int(c.r.width),
		Height: h,
		Stride: stride,
		Format: types.PixFmtBGRA,
	}, nil
}

func (c *xshmRegion) Close() {
	C.xshm_close(c.r)
	c.r = nil
}
