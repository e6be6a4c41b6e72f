/*
 * atomicdata.go, part of protfun.
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
	"strings"
)

//A map for assigning mass to elements.
//Note that just common "bio-elements" are present
var symbolMass = map[string]float64{
	"H":  1.0,
	"C":  12.01,
	"O":  16.00,
	"N":  14.01,
	"P":  30.97,
	"S":  32.06,
	"Se": 78.96,
	"K":  39.1,
	"Ca": 40.08,
	"Mg": 24.30,
	"Cl": 35.45,
	"Na": 22.99,
	"Cu": 63.55,
	"Zn": 65.38,
	"Co": 58.93,
	"Fe": 55.84,
	"Mn": 54.94,
}

//Van der Waals radii, from 10.1021/j100785a001 and 10.1021/jp8111556
//metal radii from 10.1023/A:1011625728803
var symbolVdwrad = map[string]float64{
	"H":  1.10,
	"C":  1.70,
	"O":  1.52,
	"N":  1.55,
	"P":  1.80,
	"S":  1.80,
	"Se": 1.90,
	"K":  2.75,
	"Ca": 2.31,
	"Mg": 1.73,
	"Cl": 1.75,
	"Na": 2.27,
	"Cu": 2.00,
	"Zn": 2.02,
	"Co": 1.95,
	"Fe": 1.96,
	"Mn": 1.96,
}

// DefaultVdwRadius is used for atoms whose element is unknown.
const DefaultVdwRadius = 1.70

// VdwRadius returns the van der Waals radius of the element symbol, in A,
// and whether the element is known.
func VdwRadius(symbol string) (float64, bool) {
	r, ok := symbolVdwrad[symbol]
	if !ok {
		return DefaultVdwRadius, false
	}
	return r, true
}

// ionSymbol returns the element symbol for single-atom residues where the
// residue and atom names are the same (ZN ZN, CA CA, etc.), or "" otherwise.
func ionSymbol(name, resname string) string {
	name = strings.TrimSpace(name)
	if name != strings.TrimSpace(resname) || len(name) > 2 {
		return ""
	}
	s := name[:1] + strings.ToLower(name[1:])
	if _, ok := symbolMass[s]; !ok {
		return ""
	}
	return s
}

// Mass returns the atomic mass of the element symbol, or 0 if the element is not known.
func Mass(symbol string) float64 {
	return symbolMass[symbol]
}

//A map between 3-letters name for aminoacidic residues to the corresponding 1-letter names.
var three2OneLetter = map[string]byte{
	"SER": 'S',
	"THR": 'T',
	"ASN": 'N',
	"GLN": 'Q',
	"SEC": 'U', //Selenocysteine!
	"CYS": 'C',
	"GLY": 'G',
	"PRO": 'P',
	"ALA": 'A',
	"VAL": 'V',
	"ILE": 'I',
	"LEU": 'L',
	"MET": 'M',
	"PHE": 'F',
	"TYR": 'Y',
	"TRP": 'W',
	"ARG": 'R',
	"HIS": 'H',
	"LYS": 'K',
	"ASP": 'D',
	"GLU": 'E',
}

// IsAminoacid returns true if resname is the 3-letter name of one of the
// standard aminoacids.
func IsAminoacid(resname string) bool {
	_, ok := three2OneLetter[resname]
	return ok
}

// SymbolFromName tries to guess a chemical element symbol from a PDB atom name.
// Mostly based on AMBER names. It only deals with some common bio-elements,
// and returns the empty string if the symbol can't be guessed.
func SymbolFromName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	//Names starting with a digit are hydrogens (1HB, 2HG2...)
	if name[0] >= '0' && name[0] <= '9' {
		return "H"
	}
	if len(name) == 4 || name[0] == 'H' { //I thiiink only Hs can have 4-char names in amber.
		return "H"
	}
	switch name {
	case "CU":
		return "Cu"
	case "CO":
		return "Co"
	case "CL":
		return "Cl"
	case "NA":
		return "Na"
	case "SE":
		return "Se"
	case "ZN":
		return "Zn"
	case "FE":
		return "Fe"
	case "MG":
		return "Mg"
	case "MN":
		return "Mn"
	}
	switch name[0] {
	case 'C':
		return "C"
	case 'N':
		return "N"
	case 'O':
		return "O"
	case 'P':
		return "P"
	case 'S':
		return "S"
	}
	return ""
}

// FormalCharge returns the partial charge assigned to an atom from its residue and
// atom names, for a protein at physiological pH. Carboxylate oxygens of
// Asp and Glu get -0.5 each, Lys NZ +1, Arg NH1/NH2 +0.5 each. The first
// residue of a chain gets +1 on its N, and the -1 of the terminal
// carboxylate is assigned to OXT. Everything else is neutral.
func FormalCharge(resname, atomname string, nterm bool) float64 {
	atomname = strings.TrimSpace(atomname)
	if nterm && atomname == "N" && IsAminoacid(resname) {
		return 1
	}
	switch atomname {
	case "OXT":
		return -1
	}
	switch resname {
	case "ASP":
		if atomname == "OD1" || atomname == "OD2" {
			return -0.5
		}
	case "GLU":
		if atomname == "OE1" || atomname == "OE2" {
			return -0.5
		}
	case "LYS":
		if atomname == "NZ" {
			return 1
		}
	case "ARG":
		if atomname == "NH1" || atomname == "NH2" {
			return 0.5
		}
	}
	return 0
}
