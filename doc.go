/*
 * doc.go, part of protfun.
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

/*
Package protfun is the main package of the protfun library. It provides the molecule
records and padded batches that feed the grid mapping and classification
pipeline, plus facilities to read protein structures from PDB files.

	**protfun Capabilities**

    Reads PDB files (plain, gzip or zstd compressed), including the UniProt
	accessions in DBREF records.

    Builds centered molecule records with van der Waals radii and
	formal charges for the charged residues.

    Pads molecules with different numbers of atoms into fixed-shape
	batches, with an atom mask that tells real atoms from padding.

    Maps batches into density and electrostatic potential grids, and rotates
	them randomly (package grid).

    Trains a multi-label convolutional classifier over the grids (packages
	classifier and train), with the labels derived from Gene Ontology
	annotations (package ontology).

    Analyses the performance of a trained model with ROC curves and
	plots (package perf).

Errors returned by protfun and its subpackages implement ErrorInt. The kind of error
can be checked with errors.Is against ErrShapeMismatch, ErrInvalidGridConfig
and ErrNotCompiled.
*/
package protfun
