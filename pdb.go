/*
 * pdb.go, part of protfun.
 *
 * Copyright 2024 The protfun authors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package protfun

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// PDBAtom contains the information read from one ATOM or HETATM record.
type PDBAtom struct {
	ID        int
	Name      string
	Resname   string
	Chain     byte
	Resid     int
	Het       bool
	Symbol    string
	Occupancy float64
	Bfactor   float64
	Coords    [3]float64
}

// PDB is a structure read from a PDB file. Only the first model is kept.
type PDB struct {
	Name    string   //the PDB id, or the file name if the id is not in the file
	UniProt []string //UniProt accessions from the DBREF records, in order, without repetitions
	Atoms   []*PDBAtom
}

// PDBFileRead reads a PDB file. If the name ends with .gz or .zst, the file is
// decompressed on the fly.
func PDBFileRead(name string) (*PDB, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, NewError(nil, "PDBFileRead", err.Error())
	}
	defer f.Close()
	var r io.Reader = f
	switch filepath.Ext(name) {
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, NewError(nil, "PDBFileRead", fmt.Sprintf("%s: %s", name, err))
		}
		defer gz.Close()
		r = gz
	case ".zst":
		zs, err := zstd.NewReader(f)
		if err != nil {
			return nil, NewError(nil, "PDBFileRead", fmt.Sprintf("%s: %s", name, err))
		}
		defer zs.Close()
		r = zs
	}
	p, err := ReadPDB(r)
	if err != nil {
		return nil, errDecorate(err, "PDBFileRead")
	}
	if p.Name == "" {
		p.Name = pdbStem(name)
	}
	return p, nil
}

// pdbStem returns the file name without directories and PDB-related extensions.
func pdbStem(name string) string {
	base := filepath.Base(name)
	for _, ext := range []string{".gz", ".zst", ".pdb", ".ent"} {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimPrefix(base, "pdb") //wwPDB file names are pdbXXXX.ent
}

// ReadPDB reads a PDB structure from r. Only ATOM and HETATM records of the first
// model are read, and among alternative locations only the blank and 'A' ones.
func ReadPDB(r io.Reader) (*PDB, error) {
	p := &PDB{Atoms: make([]*PDBAtom, 0, 1000)}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	seen := make(map[string]bool)
	uniprotNext := false //a DBREF1 with UNP was just read
	lineno := 0
	for s.Scan() {
		lineno++
		line := s.Text()
		if len(line) < 6 {
			continue
		}
		record := strings.TrimSpace(line[:6])
		switch record {
		case "HEADER":
			if len(line) >= 66 {
				p.Name = strings.TrimSpace(line[62:66])
			}
		case "DBREF":
			f := strings.Fields(line)
			if len(f) >= 7 && f[5] == "UNP" && !seen[f[6]] {
				seen[f[6]] = true
				p.UniProt = append(p.UniProt, f[6])
			}
		case "DBREF1":
			f := strings.Fields(line)
			uniprotNext = len(f) >= 6 && f[5] == "UNP"
		case "DBREF2":
			f := strings.Fields(line)
			if uniprotNext && len(f) >= 4 && !seen[f[3]] {
				seen[f[3]] = true
				p.UniProt = append(p.UniProt, f[3])
			}
			uniprotNext = false
		case "ATOM", "HETATM":
			if len(line) > 16 && line[16] != ' ' && line[16] != 'A' {
				continue
			}
			at, err := readPDBAtomLine(line)
			if err != nil {
				return nil, NewError(nil, "ReadPDB", fmt.Sprintf("line %d: %s", lineno, err))
			}
			p.Atoms = append(p.Atoms, at)
		case "ENDMDL":
			return p, nil
		}
	}
	if err := s.Err(); err != nil {
		return nil, NewError(nil, "ReadPDB", err.Error())
	}
	return p, nil
}

// readPDBAtomLine parses an ATOM or HETATM line. Coordinates are required, occupancy,
// b-factor and element are read only if present.
func readPDBAtomLine(line string) (*PDBAtom, error) {
	if len(line) < 54 {
		return nil, fmt.Errorf("ATOM record too short (%d characters)", len(line))
	}
	at := new(PDBAtom)
	var err error
	at.Het = strings.HasPrefix(line, "HETATM")
	at.ID, _ = strconv.Atoi(strings.TrimSpace(line[6:11])) //large structures overflow this field
	at.Name = strings.TrimSpace(line[12:16])
	at.Resname = strings.TrimSpace(line[17:20])
	at.Chain = line[21]
	if at.Resid, err = strconv.Atoi(strings.TrimSpace(line[22:26])); err != nil {
		return nil, fmt.Errorf("residue number: %w", err)
	}
	for i, cols := range [3][2]int{{30, 38}, {38, 46}, {46, 54}} {
		at.Coords[i], err = strconv.ParseFloat(strings.TrimSpace(line[cols[0]:cols[1]]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %d: %w", i, err)
		}
	}
	at.Occupancy = 1
	if len(line) >= 60 {
		if o, err := strconv.ParseFloat(strings.TrimSpace(line[54:60]), 64); err == nil {
			at.Occupancy = o
		}
	}
	if len(line) >= 66 {
		at.Bfactor, _ = strconv.ParseFloat(strings.TrimSpace(line[60:66]), 64)
	}
	if len(line) >= 78 {
		sym := strings.TrimSpace(line[76:78])
		if sym != "" {
			at.Symbol = sym[:1] + strings.ToLower(sym[1:])
		}
	}
	//This part tries to guess the symbol from the atom name, if it has not been read
	if at.Symbol == "" {
		if s := ionSymbol(at.Name, at.Resname); s != "" && at.Het {
			at.Symbol = s
		} else {
			at.Symbol = SymbolFromName(at.Name)
		}
	}
	return at, nil
}

// PDBOptions contains the options to build a MoleculeRecord from a PDB.
type PDBOptions struct {
	SkipWater    bool //remove HOH/WAT residues
	SkipHydrogen bool
	SkipHetero   bool //remove every HETATM record
}

// DefaultPDBOptions returns the default options, which remove waters and hydrogens.
func DefaultPDBOptions() *PDBOptions {
	return &PDBOptions{SkipWater: true, SkipHydrogen: true}
}

func isWater(resname string) bool {
	return resname == "HOH" || resname == "WAT" || resname == "SOL" || resname == "DOD"
}

// Record builds a centered MoleculeRecord from the structure. Charges are
// assigned with FormalCharge, radii with VdwRadius. The second returned
// value is the number of atoms whose element was unknown, which got
// DefaultVdwRadius.
func (p *PDB) Record(o *PDBOptions) (*MoleculeRecord, int, error) {
	if o == nil {
		o = DefaultPDBOptions()
	}
	n := len(p.Atoms)
	coords := make([]float64, 0, 3*n)
	charges := make([]float64, 0, n)
	radii := make([]float64, 0, n)
	unknown := 0
	firstres := make(map[byte]int) //first aminoacid residue of each chain
	for _, at := range p.Atoms {
		if _, ok := firstres[at.Chain]; !ok && !at.Het && IsAminoacid(at.Resname) {
			firstres[at.Chain] = at.Resid
		}
	}
	for _, at := range p.Atoms {
		if (o.SkipWater && isWater(at.Resname)) || (o.SkipHetero && at.Het) || (o.SkipHydrogen && at.Symbol == "H") {
			continue
		}
		r, ok := VdwRadius(at.Symbol)
		if !ok {
			unknown++
		}
		first, ok := firstres[at.Chain]
		nterm := ok && !at.Het && at.Resid == first
		coords = append(coords, at.Coords[:]...)
		charges = append(charges, FormalCharge(at.Resname, at.Name, nterm))
		radii = append(radii, r)
	}
	rec, err := NewMoleculeRecord(p.Name, coords, charges, radii)
	if err != nil {
		return nil, unknown, errDecorate(err, "PDB.Record")
	}
	rec.Center()
	return rec, unknown, nil
}
