package symbols

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// entryHeaderSize is the fixed part of a symbol upload entry: entry length,
// index group, index offset, size, data type, flags (u32 each) and name, type
// and comment lengths (u16 each).
const entryHeaderSize = 30

// SymbolInfo is one entry of a symbol upload table.
type SymbolInfo struct {
	Name        string
	TypeName    string
	Comment     string
	IndexGroup  uint32
	IndexOffset uint32
	Size        uint32
	DataType    DataType
	Flags       uint32
	ArrayDims   []uint32
}

// UploadInfo is the answer to a symbol upload info request.
type UploadInfo struct {
	Count  uint32
	Length uint32
}

func (u UploadInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], u.Count)
	binary.LittleEndian.PutUint32(buf[4:8], u.Length)
	return buf, nil
}

// EncodeSymbolTable serializes symbols into the upload table layout.
func EncodeSymbolTable(symbols []*Symbol) []byte {
	var out []byte
	for _, sym := range symbols {
		out = append(out, encodeSymbolEntry(sym)...)
	}
	return out
}

func encodeSymbolEntry(sym *Symbol) []byte {
	typeName := sym.TypeName()
	length := entryHeaderSize + len(sym.Name) + 1 + len(typeName) + 1 + len(sym.Comment) + 1

	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(length))
	binary.LittleEndian.PutUint32(buf[4:8], sym.IndexGroup())
	binary.LittleEndian.PutUint32(buf[8:12], sym.Offset)
	binary.LittleEndian.PutUint32(buf[12:16], sym.Size())
	binary.LittleEndian.PutUint32(buf[16:20], uint32(sym.Type))
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint16(buf[24:26], uint16(len(sym.Name)))
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(typeName)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(sym.Comment)))

	pos := entryHeaderSize
	pos += copy(buf[pos:], sym.Name) + 1
	pos += copy(buf[pos:], typeName) + 1
	copy(buf[pos:], sym.Comment)
	return buf
}

// ParseSymbolTable parses raw symbol upload data.
func ParseSymbolTable(data []byte) ([]SymbolInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("symbols: upload data is empty")
	}

	var infos []SymbolInfo
	offset := 0

	for offset < len(data) {
		if offset+4 > len(data) {
			break
		}

		entryLength := binary.LittleEndian.Uint32(data[offset : offset+4])
		if entryLength == 0 {
			break
		}

		if offset+int(entryLength) > len(data) {
			return nil, fmt.Errorf("symbols: invalid entry length %d at offset %d", entryLength, offset)
		}

		info, err := parseSymbolEntry(data[offset : offset+int(entryLength)])
		if err != nil {
			return nil, fmt.Errorf("symbols: parse entry at offset %d: %w", offset, err)
		}

		infos = append(infos, info)
		offset += int(entryLength)
	}

	return infos, nil
}

func parseSymbolEntry(data []byte) (SymbolInfo, error) {
	if len(data) < entryHeaderSize {
		return SymbolInfo{}, fmt.Errorf("entry too short: %d bytes", len(data))
	}

	info := SymbolInfo{
		IndexGroup:  binary.LittleEndian.Uint32(data[4:8]),
		IndexOffset: binary.LittleEndian.Uint32(data[8:12]),
		Size:        binary.LittleEndian.Uint32(data[12:16]),
		DataType:    DataType(binary.LittleEndian.Uint32(data[16:20])),
		Flags:       binary.LittleEndian.Uint32(data[20:24]),
	}

	nameLength := int(binary.LittleEndian.Uint16(data[24:26]))
	typeLength := int(binary.LittleEndian.Uint16(data[26:28]))
	commentLength := int(binary.LittleEndian.Uint16(data[28:30]))

	pos := entryHeaderSize
	var err error
	if info.Name, pos, err = nextString(data, pos, nameLength, "name"); err != nil {
		return SymbolInfo{}, err
	}
	if info.TypeName, pos, err = nextString(data, pos, typeLength, "type"); err != nil {
		return SymbolInfo{}, err
	}
	if info.Comment, _, err = nextString(data, pos, commentLength, "comment"); err != nil {
		return SymbolInfo{}, err
	}

	if strings.Contains(info.TypeName, "ARRAY") {
		info.ArrayDims = parseArrayDimensions(info.TypeName)
	}
	return info, nil
}

// nextString reads a NUL terminated string of length n at pos.
func nextString(data []byte, pos, n int, field string) (string, int, error) {
	if pos+n+1 > len(data) {
		return "", pos, fmt.Errorf("invalid %s length %d", field, n)
	}
	return parseString(data[pos : pos+n+1]), pos + n + 1, nil
}

func parseArrayDimensions(typeName string) []uint32 {
	var dims []uint32

	start := strings.Index(typeName, "[")
	end := strings.Index(typeName, "]")

	if start == -1 || end == -1 {
		return dims
	}

	for _, r := range strings.Split(typeName[start+1:end], ",") {
		parts := strings.Split(strings.TrimSpace(r), "..")
		if len(parts) == 2 {
			var low, high uint32
			fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &low)
			fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &high)
			dims = append(dims, high-low+1)
		}
	}

	return dims
}

func parseString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
