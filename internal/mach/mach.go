// Package mach collects the platform constants a MIPS R3000-class
// software-TLB machine exposes to the VM subsystem: page geometry, the
// TLB entry bit layout, and the top of the user address range.
package mach

// PageBits is the base-2 exponent of the page size.
const PageBits uint = 12

// PageSize is the size of a single page in bytes.
const PageSize uint32 = 1 << PageBits

// PageOffset masks the in-page offset of a virtual or physical address.
const PageOffset uint32 = PageSize - 1

// PageFrame masks the page-frame bits of a physical address or elo value.
const PageFrame uint32 = ^PageOffset

// TLBValid marks a TLB/PTE entry as present (the "V" bit).
const TLBValid uint32 = 1 << 9

// TLBDirty marks a TLB/PTE entry as writable. On this MIPS variant the
// "dirty" bit is the write-enable bit, not a modified-since-write bit.
const TLBDirty uint32 = 1 << 10

// UserStack is the address just past the top of every address space's
// user stack; as_define_stack lays the stack down below it. On this
// MIPS layout it coincides with the start of KSeg0 (0x80000000):
// KUSEG, the mapped user segment, spans [0, UserStack); KSeg0, the
// unmapped direct-mapped kernel segment, spans [UserStack, 0xa0000000).
const UserStack uint32 = 0x80000000

// KSeg0Base is the start of the unmapped, direct-mapped kernel
// segment. Physical address p is always visible to the kernel at
// virtual address p|KSeg0Base.
const KSeg0Base uint32 = UserStack

// KVAddr converts a physical address to its direct-mapped kernel
// virtual address (the PADDR_TO_KVADDR macro in OS/161).
func KVAddr(phys uint32) uint32 {
	return phys | KSeg0Base
}

// PAddr converts a direct-mapped kernel virtual address back to a
// physical address.
func PAddr(kvaddr uint32) uint32 {
	return kvaddr &^ KSeg0Base
}

// StackPages is the number of pages as_define_stack reserves.
const StackPages = 16

// PageOf rounds addr down to its containing page number (vpn).
func PageOf(addr uint32) uint32 {
	return addr &^ PageOffset
}

// FrameOf extracts the physical frame-number bits from an elo value or
// physical address.
func FrameOf(v uint32) uint32 {
	return v & PageFrame
}
