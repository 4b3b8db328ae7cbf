package procfs

import (
	"os"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

const sampleMaps = `55d0c8a00000-55d0c8a02000 r--p 00000000 08:01 1311234                    /usr/bin/prog
55d0c8a02000-55d0c8a07000 r-xp 00002000 08:01 1311234                    /usr/bin/prog
55d0c9f1e000-55d0c9f3f000 rw-p 00000000 00:00 0                          [heap]
7f1a2c000000-7f1a2c028000 r--p 00000000 fd:00 2621471                    /usr/lib/libc.so.6
7f1a2c028000-7f1a2c1bd000 r-xp 00028000 fd:00 2621471                    /usr/lib/libc.so.6
7f1a2c400000-7f1a2c401000 rw-s 00000000 00:05 42
7ffd6b2f1000-7ffd6b2f5000 r--p 00000000 00:00 0                          [vvar]
`

type ProcfsSuite struct{}

func TestProcfs(t *testing.T) {
	suite.RunTests(t, &ProcfsSuite{})
}

func (ProcfsSuite) TestParse(t *testing.T) {
	regions, err := ParseMappedMemoryRegions(sampleMaps)
	expect.Nil(t, err)
	expect.Equal(t, 7, len(regions))

	expect.Equal(
		t,
		MappedMemoryRegion{
			LowAddress:  0x55d0c8a02000,
			HighAddress: 0x55d0c8a07000,
			Read:        true,
			Execute:     true,
			Private:     true,
			Offset:      0x2000,
			DeviceMajor: 8,
			DeviceMinor: 1,
			Inode:       1311234,
			Pathname:    "/usr/bin/prog",
		},
		regions[1])

	expect.Equal(t, "[heap]", regions[2].Pathname)
	expect.False(t, regions[2].IsFileBacked())

	expect.Equal(t, uint(0xfd), regions[3].DeviceMajor)

	expect.Equal(t, "", regions[5].Pathname)
	expect.False(t, regions[5].Private)
	expect.True(t, regions[5].Write)
}

func (ProcfsSuite) TestParseErrors(t *testing.T) {
	_, err := ParseMappedMemoryRegions("55d0c8a00000 r--p 0 08:01 1 /bin/x\n")
	expect.Error(t, err, "malformed address range")

	_, err = ParseMappedMemoryRegions("0-1 r--p zz 08:01 1 /bin/x\n")
	expect.Error(t, err, "failed to parse offset")

	_, err = ParseMappedMemoryRegions("0-1 r--p 0 0801 1 /bin/x\n")
	expect.Error(t, err, "malformed device")

	_, err = ParseMappedMemoryRegions("\n0-1 r--p\n")
	expect.Error(t, err, "line 2")
}

func (ProcfsSuite) TestMappedFiles(t *testing.T) {
	regions, err := ParseMappedMemoryRegions(sampleMaps)
	expect.Nil(t, err)

	expect.Equal(
		t,
		[]string{"/usr/bin/prog", "/usr/lib/libc.so.6"},
		MappedFiles(regions))
}

func (ProcfsSuite) TestLoadOffset(t *testing.T) {
	regions, err := ParseMappedMemoryRegions(sampleMaps)
	expect.Nil(t, err)

	offset, ok := LoadOffset(regions, "/usr/bin/prog")
	expect.True(t, ok)
	expect.Equal(t, uint64(0x55d0c8a00000), offset)

	offset, ok = LoadOffset(regions, "/usr/lib/libc.so.6")
	expect.True(t, ok)
	expect.Equal(t, uint64(0x7f1a2c000000), offset)

	_, ok = LoadOffset(regions, "/usr/lib/libm.so.6")
	expect.False(t, ok)

	region, ok := RegionContaining(regions, 0x7f1a2c030000)
	expect.True(t, ok)
	expect.Equal(t, uint64(0x28000), region.Offset)

	_, ok = RegionContaining(regions, 0x10)
	expect.False(t, ok)
}

func (ProcfsSuite) TestSelf(t *testing.T) {
	pid := os.Getpid()

	regions, err := GetMappedMemoryRegions(pid)
	expect.Nil(t, err)
	expect.True(t, len(regions) > 0)

	exe, err := GetExecutablePath(pid)
	expect.Nil(t, err)

	_, ok := LoadOffset(regions, exe)
	expect.True(t, ok)

	_, err = GetMappedMemoryRegions(-1)
	expect.Error(t, err, "failed to read /proc/-1/maps")
}
