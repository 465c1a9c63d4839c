// Package pagetrack discovers which pages of a memory region were written
// since the last checkpoint.
//
// A Tracker is constructed once with one of three interchangeable
// strategies and exposes the same protocol regardless of strategy:
// MarkClean resets the baseline, DirtyPages reports the set of pages
// written since the baseline without resetting it.
//
//   - StrategyUffd registers the region with userfaultfd in asynchronous
//     write-protect mode and queries written pages through the kernel's
//     pagemap scan ioctl. Lowest overhead for sparse writes; requires a
//     Linux kernel with UFFD_FEATURE_WP_ASYNC.
//   - StrategySoftDirty reads the per-page soft-dirty bit from
//     /proc/self/pagemap and resets it through /proc/self/clear_refs.
//     No registration needed, but the reset is process-wide, so the
//     baseline is coarser than the tracked region.
//   - StrategyShadow keeps a private copy of the region and reports pages
//     whose bytes differ at scan time. Portable fallback with no kernel
//     dependency; overhead is a per-page compare instead of a fault.
//
// Strategy selection happens exactly once, at construction. A strategy the
// platform cannot support fails there with a configuration error, never
// mid-scan.
package pagetrack
