/*
 * pdb_test.go, part of protfun.
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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func atomLine(rec string, serial int, name, alt, res string, resid int, x, y, z float64, elem string) string {
	return fmt.Sprintf("%-6s%5d %-4s%1s%3s %1s%4d%1s   %8.3f%8.3f%8.3f%6.2f%6.2f          %2s",
		rec, serial, name, alt, res, "A", resid, " ", x, y, z, 1.0, 10.0, elem)
}

func testPDB() string {
	lines := []string{
		fmt.Sprintf("%-62s%4s", "HEADER    HYDROLASE", "1ABC"),
		"DBREF  1ABC A    1   100  UNP    P12345   LYS_HUMAN        1    100",
		"DBREF  1ABC B    1   100  UNP    P12345   LYS_HUMAN        1    100",
		"MODEL        1",
		atomLine("ATOM", 1, " N", " ", "LYS", 1, 0, 0, 0, "N"),
		atomLine("ATOM", 2, " CA", " ", "LYS", 1, 1.5, 0, 0, "C"),
		atomLine("ATOM", 3, " HA", " ", "LYS", 1, 1.5, 1, 0, "H"),
		atomLine("ATOM", 4, " NZ", " ", "LYS", 1, 3, 0, 0, "N"),
		atomLine("ATOM", 5, " OD1", "A", "ASP", 2, 0, 3, 0, "O"),
		atomLine("ATOM", 6, " OD1", "B", "ASP", 2, 0, 3.2, 0, "O"),
		atomLine("ATOM", 7, " OD2", " ", "ASP", 2, 0, 4, 0, "O"),
		atomLine("ATOM", 8, " OXT", " ", "ASP", 2, 0, 5, 0, "O"),
		atomLine("HETATM", 9, " O", " ", "HOH", 101, 9, 9, 9, "O"),
		atomLine("HETATM", 10, "ZN", " ", " ZN", 102, -3, -3, 0, ""),
		"TER",
		"ENDMDL",
		"MODEL        2",
		atomLine("ATOM", 1, " N", " ", "LYS", 1, 100, 0, 0, "N"),
		"ENDMDL",
		"END",
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestReadPDB(Te *testing.T) {
	p, err := ReadPDB(strings.NewReader(testPDB()))
	require.NoError(Te, err)
	assert.Equal(Te, "1ABC", p.Name)
	assert.Equal(Te, []string{"P12345"}, p.UniProt)
	require.Len(Te, p.Atoms, 9) //the altloc B atom and the second model are not read
	assert.Equal(Te, "NZ", p.Atoms[3].Name)
	assert.Equal(Te, "LYS", p.Atoms[3].Resname)
	assert.Equal(Te, 3.0, p.Atoms[3].Coords[0])
	zn := p.Atoms[8]
	assert.True(Te, zn.Het)
	assert.Equal(Te, "Zn", zn.Symbol)
	assert.Equal(Te, 10.0, zn.Bfactor)

	rec, unknown, err := p.Record(nil)
	require.NoError(Te, err)
	assert.Equal(Te, 0, unknown)
	assert.Equal(Te, "1ABC", rec.ID)
	assert.Equal(Te, 7, rec.AtomsCount) //no water and no hydrogen
	assert.Equal(Te, []float64{1, 0, 1, -0.5, -0.5, -1, 0}, rec.Charges)
	assert.Equal(Te, []float64{1.55, 1.70, 1.55, 1.52, 1.52, 1.52, 2.02}, rec.VdwRadii)
	assert.True(Te, rec.Centered(1e-9))

	all, _, err := p.Record(&PDBOptions{})
	require.NoError(Te, err)
	assert.Equal(Te, 9, all.AtomsCount)
}

func TestReadPDBErrors(Te *testing.T) {
	_, err := ReadPDB(strings.NewReader("ATOM      1  N   LYS A   1       0.000\n"))
	assert.Error(Te, err)
	p, err := ReadPDB(strings.NewReader("REMARK nothing here\n"))
	require.NoError(Te, err)
	rec, _, err := p.Record(nil)
	require.NoError(Te, err)
	assert.Equal(Te, 0, rec.AtomsCount)
}

func TestPDBFileRead(Te *testing.T) {
	dir := Te.TempDir()
	name := filepath.Join(dir, "pdb1abc.ent.gz")
	f, err := os.Create(name)
	require.NoError(Te, err)
	gz := gzip.NewWriter(f)
	//no HEADER, so the name comes from the file
	body := testPDB()
	body = body[strings.Index(body, "\n")+1:]
	_, err = gz.Write([]byte(body))
	require.NoError(Te, err)
	require.NoError(Te, gz.Close())
	require.NoError(Te, f.Close())

	p, err := PDBFileRead(name)
	require.NoError(Te, err)
	assert.Equal(Te, "1abc", p.Name)
	assert.Len(Te, p.Atoms, 9)

	_, err = PDBFileRead(filepath.Join(dir, "nope.pdb"))
	assert.Error(Te, err)
}

func TestSymbolFromName(Te *testing.T) {
	for name, sym := range map[string]string{"CA": "C", "CB": "C", "1HB": "H", "HG21": "H", "OXT": "O", "SG": "S", "SE": "Se", "NZ": "N", "X": ""} {
		assert.Equal(Te, sym, SymbolFromName(name), name)
	}
	assert.Equal(Te, "Ca", ionSymbol("CA", "CA"))
	assert.Equal(Te, "", ionSymbol("CA", "LYS"))
}
