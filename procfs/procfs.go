// Package procfs reads the memory maps of running processes, which are used
// to derive the load offsets of position independent binaries.
package procfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type MappedMemoryRegion struct {
	LowAddress  uint64
	HighAddress uint64

	Read    bool
	Write   bool
	Execute bool
	Private bool // (copy on write)

	Offset uint64

	DeviceMajor uint
	DeviceMinor uint
	Inode       uint

	Pathname string
}

func (region MappedMemoryRegion) Contains(address uint64) bool {
	return region.LowAddress <= address && address < region.HighAddress
}

// IsFileBacked returns false for anonymous and pseudo mappings (e.g.,
// [heap], [stack], [vdso]).
func (region MappedMemoryRegion) IsFileBacked() bool {
	return region.Inode != 0 && strings.HasPrefix(region.Pathname, "/")
}

func MapsPath(pid int) string {
	return fmt.Sprintf("/proc/%d/maps", pid)
}

func GetExecutableSymlinkPath(pid int) string {
	return fmt.Sprintf("/proc/%d/exe", pid)
}

// GetExecutablePath resolves the process' executable path.
func GetExecutablePath(pid int) (string, error) {
	path, err := os.Readlink(GetExecutableSymlinkPath(pid))
	if err != nil {
		return "", fmt.Errorf(
			"failed to resolve process %d's executable: %w",
			pid,
			err)
	}
	return path, nil
}

func GetMappedMemoryRegions(pid int) ([]MappedMemoryRegion, error) {
	path := MapsPath(pid)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	regions, err := ParseMappedMemoryRegions(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return regions, nil
}

// ParseMappedMemoryRegions parses the content of a /proc/<pid>/maps file.
func ParseMappedMemoryRegions(content string) ([]MappedMemoryRegion, error) {
	result := []MappedMemoryRegion{}
	for idx, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := parseMappedMemoryRegion(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", idx+1, err)
		}

		result = append(result, entry)
	}

	return result, nil
}

func parseMappedMemoryRegion(line string) (MappedMemoryRegion, error) {
	entry := MappedMemoryRegion{}
	chunks := strings.SplitN(line, " ", 6)
	if len(chunks) < 5 {
		return entry, fmt.Errorf("malformed region (%s)", line)
	}

	addresses := strings.SplitN(chunks[0], "-", 2)
	if len(addresses) != 2 {
		return entry, fmt.Errorf("malformed address range (%s)", chunks[0])
	}

	lowAddr, err := strconv.ParseUint(addresses[0], 16, 64)
	if err != nil {
		return entry, fmt.Errorf("failed to parse low address: %w", err)
	}
	entry.LowAddress = lowAddr

	highAddr, err := strconv.ParseUint(addresses[1], 16, 64)
	if err != nil {
		return entry, fmt.Errorf("failed to parse high address: %w", err)
	}
	entry.HighAddress = highAddr

	for idx, b := range []byte(chunks[1]) {
		switch idx {
		case 0:
			entry.Read = b == 'r'
		case 1:
			entry.Write = b == 'w'
		case 2:
			entry.Execute = b == 'x'
		case 3:
			entry.Private = b == 'p'
		}
	}

	offset, err := strconv.ParseUint(chunks[2], 16, 64)
	if err != nil {
		return entry, fmt.Errorf("failed to parse offset: %w", err)
	}
	entry.Offset = offset

	device := strings.SplitN(chunks[3], ":", 2)
	if len(device) != 2 {
		return entry, fmt.Errorf("malformed device (%s)", chunks[3])
	}

	major, err := strconv.ParseUint(device[0], 16, 32)
	if err != nil {
		return entry, fmt.Errorf("failed to parse device major: %w", err)
	}
	entry.DeviceMajor = uint(major)

	minor, err := strconv.ParseUint(device[1], 16, 32)
	if err != nil {
		return entry, fmt.Errorf("failed to parse device minor: %w", err)
	}
	entry.DeviceMinor = uint(minor)

	inode, err := strconv.ParseUint(chunks[4], 10, 64)
	if err != nil {
		return entry, fmt.Errorf("failed to parse inode: %w", err)
	}
	entry.Inode = uint(inode)

	if len(chunks) == 6 {
		entry.Pathname = strings.TrimSpace(chunks[5])
	}

	return entry, nil
}

// MappedFiles returns the distinct file backed paths in mapping order.
func MappedFiles(regions []MappedMemoryRegion) []string {
	seen := map[string]struct{}{}
	result := []string{}
	for _, region := range regions {
		if !region.IsFileBacked() {
			continue
		}

		_, ok := seen[region.Pathname]
		if ok {
			continue
		}
		seen[region.Pathname] = struct{}{}
		result = append(result, region.Pathname)
	}
	return result
}

// LoadOffset returns the address at which the file's first byte is mapped,
// i.e., the load bias of a position independent binary whose first segment
// starts at file address 0.
func LoadOffset(
	regions []MappedMemoryRegion,
	pathname string,
) (
	uint64,
	bool,
) {
	for _, region := range regions {
		if region.Pathname != pathname {
			continue
		}

		if region.Offset > region.LowAddress {
			return 0, false
		}

		return region.LowAddress - region.Offset, true
	}

	return 0, false
}

// RegionContaining returns the region mapping the address.
func RegionContaining(
	regions []MappedMemoryRegion,
	address uint64,
) (
	MappedMemoryRegion,
	bool,
) {
	for _, region := range regions {
		if region.Contains(address) {
			return region, true
		}
	}
	return MappedMemoryRegion{}, false
}
