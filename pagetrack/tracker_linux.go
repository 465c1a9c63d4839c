//go:build linux

package pagetrack

import (
	"encoding/binary"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-rewind/errors"
)

const (
	pagemapPath   = "/proc/self/pagemap"
	clearRefsPath = "/proc/self/clear_refs"

	// Bit 55 of a pagemap entry is the soft-dirty flag.
	pagemapSoftDirty = uint64(1) << 55
)

// softDirtyTracker reads the kernel's per-page soft-dirty bit. Resetting
// goes through /proc/self/clear_refs, which clears the bit for the whole
// process; the tracked region is a window onto that process-wide state.
type softDirtyTracker struct {
	pagemap  *os.File
	addr     uintptr
	length   int
	pageSize int
}

func newSoftDirtyTracker(addr uintptr, length, pageSize int) (kernelTracker, error) {
	pagemap, err := os.Open(pagemapPath)
	if err != nil {
		return nil, errors.New(errors.PhaseTrack, errors.KindUnsupported).
			Detail("soft-dirty tracking requires readable %s", pagemapPath).
			Cause(err).
			Build()
	}

	// Probe clear_refs up front so an unsupported kernel fails at
	// construction rather than on the first MarkClean.
	probe, err := os.OpenFile(clearRefsPath, os.O_WRONLY, 0)
	if err != nil {
		pagemap.Close()
		return nil, errors.New(errors.PhaseTrack, errors.KindUnsupported).
			Detail("soft-dirty tracking requires writable %s", clearRefsPath).
			Cause(err).
			Build()
	}
	probe.Close()

	return &softDirtyTracker{
		pagemap:  pagemap,
		addr:     addr,
		length:   length,
		pageSize: pageSize,
	}, nil
}

func (t *softDirtyTracker) markClean() error {
	f, err := os.OpenFile(clearRefsPath, os.O_WRONLY, 0)
	if err != nil {
		return errors.IO("open clear_refs", err)
	}
	defer f.Close()
	// "4" clears the soft-dirty bits for the whole process.
	if _, err := f.Write([]byte{'4'}); err != nil {
		return errors.IO("reset soft-dirty bits", err)
	}
	return nil
}

func (t *softDirtyTracker) dirtyPages(set *PageSet) error {
	pages := (t.length + t.pageSize - 1) / t.pageSize
	entries := make([]byte, pages*8)
	off := int64(t.addr/uintptr(t.pageSize)) * 8
	if _, err := t.pagemap.ReadAt(entries, off); err != nil {
		return errors.IO("read pagemap", err)
	}
	for i := 0; i < pages; i++ {
		entry := binary.LittleEndian.Uint64(entries[i*8:])
		if entry&pagemapSoftDirty != 0 {
			set.Add(i)
		}
	}
	return nil
}

func (t *softDirtyTracker) close() error {
	return t.pagemap.Close()
}

// userfaultfd constants. x/sys/unix carries the syscall number; the ioctl
// request codes and feature bits follow include/uapi/linux/userfaultfd.h.
const (
	uffdUserModeOnly = 0x1

	uffdAPIVersion = 0xaa

	uffdFeatureWPUnpopulated = uint64(1) << 13
	uffdFeatureWPAsync       = uint64(1) << 15

	uffdRegisterModeWP = uint64(1) << 1

	uffdWriteprotectModeWP = uint64(1) << 0
)

type uffdioAPI struct {
	api      uint64
	features uint64
	ioctls   uint64
}

type uffdioRange struct {
	start uint64
	len   uint64
}

type uffdioRegister struct {
	rng    uffdioRange
	mode   uint64
	ioctls uint64
}

type uffdioWriteprotect struct {
	rng  uffdioRange
	mode uint64
}

// _IOWR(type, nr, size)
func iowr(typ, nr, size uintptr) uintptr {
	return 3<<30 | size<<16 | typ<<8 | nr
}

var (
	uffdioAPICmd          = iowr(0xaa, 0x3f, unsafe.Sizeof(uffdioAPI{}))
	uffdioRegisterCmd     = iowr(0xaa, 0x00, unsafe.Sizeof(uffdioRegister{}))
	uffdioWriteprotectCmd = iowr(0xaa, 0x06, unsafe.Sizeof(uffdioWriteprotect{}))
	pagemapScanCmd        = iowr('f', 16, unsafe.Sizeof(pmScanArg{}))
)

// pm_scan_arg from include/uapi/linux/fs.h
type pmScanArg struct {
	size             uint64
	flags            uint64
	start            uint64
	end              uint64
	walkEnd          uint64
	vec              uint64
	vecLen           uint64
	maxPages         uint64
	categoryInverted uint64
	categoryMask     uint64
	categoryAnyMask  uint64
	returnMask       uint64
}

// page_region from include/uapi/linux/fs.h
type pmPageRegion struct {
	start      uint64
	end        uint64
	categories uint64
}

const (
	pmScanWPMatching   = uint64(1) << 0
	pmScanCheckWPAsync = uint64(1) << 1

	pageIsWritten = uint64(1) << 1
)

// uffdTracker registers the region for asynchronous write-protect
// faults: the kernel records the first write to each protected page with
// no userspace handler involved. DirtyPages reads the written set through
// PAGEMAP_SCAN; MarkClean re-protects the whole range.
type uffdTracker struct {
	pagemap  *os.File
	fd       int
	addr     uintptr
	length   int
	pageSize int
}

func newUffdTracker(addr uintptr, length, pageSize int) (kernelTracker, error) {
	fd, _, errno := unix.Syscall(unix.SYS_USERFAULTFD,
		uintptr(unix.O_CLOEXEC|unix.O_NONBLOCK|uffdUserModeOnly), 0, 0)
	if errno != 0 {
		return nil, errors.New(errors.PhaseTrack, errors.KindUnsupported).
			Detail("userfaultfd syscall unavailable").
			Cause(errno).
			Build()
	}

	t := &uffdTracker{fd: int(fd), addr: addr, length: length, pageSize: pageSize}

	api := uffdioAPI{
		api:      uffdAPIVersion,
		features: uffdFeatureWPAsync | uffdFeatureWPUnpopulated,
	}
	if err := t.ioctl(uffdioAPICmd, unsafe.Pointer(&api)); err != nil {
		t.close()
		return nil, errors.New(errors.PhaseTrack, errors.KindUnsupported).
			Detail("kernel does not support UFFD_FEATURE_WP_ASYNC").
			Cause(err).
			Build()
	}

	reg := uffdioRegister{
		rng:  uffdioRange{start: uint64(addr), len: uint64(t.trackedLen())},
		mode: uffdRegisterModeWP,
	}
	if err := t.ioctl(uffdioRegisterCmd, unsafe.Pointer(&reg)); err != nil {
		t.close()
		return nil, errors.New(errors.PhaseTrack, errors.KindUnsupported).
			Detail("UFFDIO_REGISTER write-protect mode failed").
			Cause(err).
			Build()
	}

	pagemap, err := os.Open(pagemapPath)
	if err != nil {
		t.close()
		return nil, errors.New(errors.PhaseTrack, errors.KindUnsupported).
			Detail("uffd tracking requires readable %s", pagemapPath).
			Cause(err).
			Build()
	}
	t.pagemap = pagemap
	return t, nil
}

// trackedLen rounds the region length up to whole pages, as required by
// the uffd registration and scan ioctls.
func (t *uffdTracker) trackedLen() int {
	pages := (t.length + t.pageSize - 1) / t.pageSize
	return pages * t.pageSize
}

func (t *uffdTracker) ioctl(cmd uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), cmd, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (t *uffdTracker) markClean() error {
	wp := uffdioWriteprotect{
		rng:  uffdioRange{start: uint64(t.addr), len: uint64(t.trackedLen())},
		mode: uffdWriteprotectModeWP,
	}
	if err := t.ioctl(uffdioWriteprotectCmd, unsafe.Pointer(&wp)); err != nil {
		return errors.IO("UFFDIO_WRITEPROTECT", err)
	}
	return nil
}

func (t *uffdTracker) dirtyPages(set *PageSet) error {
	pages := (t.length + t.pageSize - 1) / t.pageSize
	vec := make([]pmPageRegion, pages+1)

	arg := pmScanArg{
		size:         uint64(unsafe.Sizeof(pmScanArg{})),
		flags:        pmScanCheckWPAsync,
		start:        uint64(t.addr),
		end:          uint64(t.addr) + uint64(t.trackedLen()),
		vec:          uint64(uintptr(unsafe.Pointer(&vec[0]))),
		vecLen:       uint64(len(vec)),
		categoryMask: pageIsWritten,
		returnMask:   pageIsWritten,
	}

	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.pagemap.Fd()),
		pagemapScanCmd, uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return errors.IO("PAGEMAP_SCAN", errno)
	}

	for _, region := range vec[:n] {
		first := int((uintptr(region.start) - t.addr) / uintptr(t.pageSize))
		last := int((uintptr(region.end) - t.addr + uintptr(t.pageSize) - 1) / uintptr(t.pageSize))
		for i := first; i < last && i < pages; i++ {
			set.Add(i)
		}
	}
	return nil
}

func (t *uffdTracker) close() error {
	if t.pagemap != nil {
		t.pagemap.Close()
		t.pagemap = nil
	}
	if t.fd >= 0 {
		unix.Close(t.fd)
		t.fd = -1
	}
	return nil
}
