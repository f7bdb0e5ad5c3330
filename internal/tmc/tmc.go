// Package tmc populates a symbol database from a TwinCAT module class
// (.tmc) file.
package tmc

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// Logger receives import diagnostics.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// AreaIndexGroups maps TMC area types to the index group serving them.
var AreaIndexGroups = map[string]uint32{
	symbols.KindInternal:  ads.IndexGroupPLCDataArea,
	symbols.KindInputDst:  ads.IndexGroupPhysicalInputs,
	symbols.KindOutputSrc: ads.IndexGroupPhysicalOutputs,
}

type File struct {
	DataTypes []DataType `xml:"DataTypes>DataType"`
	Modules   []Module   `xml:"Modules>Module"`
}

type DataType struct {
	Name      string     `xml:"Name"`
	BaseType  string     `xml:"BaseType"`
	BitSize   uint64     `xml:"BitSize"`
	SubItems  []item     `xml:"SubItem"`
	EnumInfo  []item     `xml:"EnumInfo"`
	ArrayInfo *ArrayInfo `xml:"ArrayInfo"`
}

type item struct {
	Name string `xml:"Name"`
	Text string `xml:"Text"`
}

type Module struct {
	Name      string     `xml:"Name"`
	DataAreas []DataArea `xml:"DataAreas>DataArea"`
}

type DataArea struct {
	AreaNo   AreaNo   `xml:"AreaNo"`
	Name     string   `xml:"Name"`
	ByteSize string   `xml:"ByteSize"`
	Symbols  []Symbol `xml:"Symbol"`
}

type AreaNo struct {
	AreaType      string `xml:"AreaType,attr"`
	CreateSymbols string `xml:"CreateSymbols,attr"`
	Number        string `xml:",chardata"`
}

type Symbol struct {
	Name      string     `xml:"Name"`
	BaseType  string     `xml:"BaseType"`
	BitSize   uint64     `xml:"BitSize"`
	BitOffs   uint64     `xml:"BitOffs"`
	ArrayInfo *ArrayInfo `xml:"ArrayInfo"`
	Comment   string     `xml:"Comment"`
}

type ArrayInfo struct {
	LBound   int64  `xml:"LBound"`
	Elements uint32 `xml:"Elements"`
}

// Parse decodes a .tmc document.
func Parse(r io.Reader) (*File, error) {
	var f File
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("tmc: %w", err)
	}
	return &f, nil
}

func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tmc: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Result summarizes an import.
type Result struct {
	Areas   int
	Symbols int
	Skipped []error
}

// Import adds every symbol-creating data area of f to db. Enumerations and
// simple aliases declared in the file are registered in reg first.
//
// Symbols that cannot be represented (unaligned, unsupported type, outside
// the area) are skipped and reported in Result.Skipped; the import goes on.
func (f *File) Import(db *symbols.Database, reg *symbols.TypeRegistry, logger Logger) (Result, error) {
	var res Result
	f.registerTypes(reg, logger)

	for _, mod := range f.Modules {
		for _, da := range mod.DataAreas {
			if da.AreaNo.CreateSymbols != "" && da.AreaNo.CreateSymbols != "true" {
				continue
			}
			group, ok := AreaIndexGroups[da.AreaNo.AreaType]
			if !ok {
				logger.Debug("tmc: skipping data area", "module", mod.Name, "area_type", da.AreaNo.AreaType)
				continue
			}
			size, err := strconv.ParseUint(strings.TrimSpace(da.ByteSize), 10, 32)
			if err != nil {
				return res, fmt.Errorf("tmc: data area %q: byte size %q: %w", da.Name, da.ByteSize, err)
			}

			area, err := db.AddArea(symbols.NewDataArea(group, da.AreaNo.AreaType, uint32(size)))
			if err != nil {
				logger.Warn("tmc: skipping data area", "module", mod.Name, "area_type", da.AreaNo.AreaType, "error", err)
				continue
			}
			res.Areas++

			for _, s := range da.Symbols {
				if _, err := reg.AddDescribed(area, s.description()); err != nil {
					logger.Warn("tmc: skipping symbol", "symbol", s.Name, "error", err)
					res.Skipped = append(res.Skipped, err)
					continue
				}
				res.Symbols++
			}
		}
	}
	return res, nil
}

func (s Symbol) description() symbols.Description {
	d := symbols.Description{
		Name:        s.Name,
		BitOffset:   s.BitOffs,
		TypeName:    strings.TrimSpace(s.BaseType),
		ArrayLength: 1,
		Comment:     strings.TrimSpace(s.Comment),
	}
	if s.ArrayInfo != nil && s.ArrayInfo.Elements > 0 {
		d.ArrayLength = s.ArrayInfo.Elements
	}
	return d
}

func (f *File) registerTypes(reg *symbols.TypeRegistry, logger Logger) {
	for _, dt := range f.DataTypes {
		if dt.Name == "" || len(dt.SubItems) > 0 || dt.ArrayInfo != nil || reg.Has(dt.Name) {
			continue
		}
		base, ok := reg.Get(strings.TrimSpace(dt.BaseType))
		if !ok {
			continue
		}
		reg.Register(dt.Name, base)
		logger.Debug("tmc: registered type", "name", dt.Name, "base", base.String(), "enum", len(dt.EnumInfo) > 0)
	}
}

// Load parses path and imports it into a new database.
func Load(path string, reg *symbols.TypeRegistry, logger Logger) (*symbols.Database, Result, error) {
	f, err := ParseFile(path)
	if err != nil {
		return nil, Result{}, err
	}
	db := symbols.NewDatabase()
	res, err := f.Import(db, reg, logger)
	if err != nil {
		return nil, res, err
	}
	return db, res, nil
}
