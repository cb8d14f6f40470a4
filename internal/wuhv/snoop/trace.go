package snoop

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// handleIoctl renders per-device ioctl argument summaries. Only /dev/fsa
// carries a detailed decode; other devices get no extra line beyond the
// generic IOCTL trace already emitted by handleResult/handleAsyncResult.
func (s *Snoop) handleIoctl(name string, ioctl uint32, indata, outdata []byte) {
	if name != "/dev/fsa" {
		return
	}
	switch ioctl {
	case 3: // FSAGetVolumeInfo
		path := cstrField(indata, 4, 0x280)
		s.log.IPC.Info(fmt.Sprintf("\tFSAGetVolumeInfo(%s)", path))
	case 4: // FSAInit
		s.log.IPC.Info("\tFSAInit()")
	case 5: // FSAChangeDir
		path := cstrField(indata, 4, 0x280)
		s.log.IPC.Info(fmt.Sprintf("\tFSAChangeDir(%s)", path))
	case 7: // FSAMakeDir
		path := cstrField(indata, 4, 0x280)
		arg := be32Field(indata, 0x284)
		s.log.IPC.Info(fmt.Sprintf("\tFSAMakeDir(%s, %d)", path, arg))
	case 8: // FSARemove
		path := cstrField(indata, 4, 0x280)
		s.log.IPC.Info(fmt.Sprintf("\tFSARemove(%s)", path))
	case 10: // FSAOpenDir
		path := cstrField(indata, 4, 0x280)
		s.log.IPC.Info(fmt.Sprintf("\tFSAOpenDir(%s)", path))
	case 14: // FSAOpenFile
		fn := cstrField(indata, 4, 0x280)
		mode := cstrField(indata, 0x284, 0x10)
		s.log.IPC.Info(fmt.Sprintf("\tFSAOpenFile(%s, %s)", fn, mode))
		s.log.Files.Info(fmt.Sprintf("FSAOpenFile(%s, %s)", fn, mode))
	case 20: // FSAGetStatFile
		handle := ""
		if len(indata) >= 8 {
			handle = strings.ToUpper(hex.EncodeToString(indata[4:8]))
		}
		s.log.IPC.Info(fmt.Sprintf("\tFSAGetStatFile(%s)", handle))
	case 24: // FSAGetInfoByQuery
		fn := cstrField(indata, 4, 0x280)
		s.log.IPC.Info(fmt.Sprintf("\tFSAGetInfoByQuery(%s, %s)", fn, fsaQueryType(be32Field(indata, 0x284))))
	}
}

// handleIoctlv is the ioctlv counterpart of handleIoctl, covering
// /dev/crypto's IOSC_* vectors and a handful of /dev/fsa vectored calls.
func (s *Snoop) handleIoctlv(name string, ioctlv uint32, vectors [][]byte, result uint32) {
	switch name {
	case "/dev/crypto":
		switch ioctlv {
		case 12: // IOSC_GenerateHash
			typ := be32Field(vectors[0], 12)
			datalen := len(vectors[2])
			hashBytes := vectors[3]
			s.log.IPC.Info(fmt.Sprintf("\tIOSC_GenerateHash(0x%X, %d) -> %s", datalen, typ, hex.EncodeToString(hashBytes)))
		case 14: // IOSC_Decrypt
			key := be32Field(vectors[0], 8)
			iv := vectors[1]
			datalen := len(vectors[2])
			s.log.IPC.Info(fmt.Sprintf("\tIOSC_Decrypt(%d, 0x%X, %s)", key, datalen, hex.EncodeToString(iv)))
		case 16: // IOSC_GenerateBlockMAC
			key := be32Field(vectors[0], 8)
			typ := be32Field(vectors[0], 12)
			datalen := len(vectors[3])
			customlen := len(vectors[2])
			hashBytes := vectors[4]
			s.log.IPC.Info(fmt.Sprintf("\tIOSC_GenerateBlockMAC(%d, 0x%X, 0x%X, %d) -> %s", key, datalen, customlen, typ, hex.EncodeToString(hashBytes)))
		}
	case "/dev/fsa":
		switch ioctlv {
		case 1: // FSAMount
			data := vectors[0]
			path1 := cstrField(data, 4, 0x280)
			path2 := cstrField(data, 0x284, 0x280)
			s.log.IPC.Info(fmt.Sprintf("\tFSAMount(%s, %s)", path1, path2))
		case 15: // FSAReadFile
			data := vectors[0]
			length := be32Field(data, 8)
			count := be32Field(data, 12)
			s.log.IPC.Info(fmt.Sprintf("\tFSAReadFile(0x%X * %d) -> 0x%X", count, length, result))
		case 103:
			data := vectors[0]
			s1 := cstrField(data, 4, 0x280)
			s2 := cstrField(data, 0x284, 0x280)
			s.log.IPC.Info(fmt.Sprintf("\tFSA_0x67(%s, %s, ...)", s1, s2))
		}
	}
}

var fsaQueryNames = map[uint32]string{
	0: "FSAGetFreeSpaceSize",
	1: "FSAGetDirSize",
	2: "FSAGetEntryNum",
	4: "FSAGetDeviceInfo",
	5: "FSAGetStat",
	7: "FSAGetJournalFreeSpaceSize",
}

func fsaQueryType(v uint32) string {
	if name, ok := fsaQueryNames[v]; ok {
		return name
	}
	return fmt.Sprintf("0x%X", v)
}

// cstrField extracts a fixed-width NUL-terminated ASCII field from a
// captured argument buffer.
func cstrField(buf []byte, off, length int) string {
	if off+length > len(buf) {
		return ""
	}
	field := buf[off : off+length]
	if i := strings.IndexByte(string(field), 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// be32Field reads a big-endian u32 at a fixed offset within a captured
// argument buffer.
func be32Field(buf []byte, off int) uint32 {
	if off+4 > len(buf) {
		return 0
	}
	return uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3])
}
