/*
 * archive.go, part of protfun.
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

// Package archive reads and writes compressed multi-array files: a block of
// key=value metadata lines, an array count, and then each array as a shape line
// followed by its little-endian float64 payload.
//
// The compression is chosen from the file suffix: ".gz" gzip, ".flate" deflate,
// ".lzw" lzw, ".raw" none, and zstd for anything else (".zst" is the usual one).
package archive

import (
	"bufio"
	"compress/lzw"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Array is a named n-dimensional array of float64 in row-major order.
type Array struct {
	Name  string
	Shape []int
	Data  []float64
}

// NewArray returns an Array with the given name, shape and data. data is not copied.
func NewArray(name string, data []float64, shape ...int) (Array, error) {
	if size(shape) != len(data) {
		return Array{}, Error{fmt.Sprintf("array %s: shape %v does not hold %d values", name, shape, len(data)), "", []string{"NewArray"}, true}
	}
	return Array{Name: name, Shape: append([]int(nil), shape...), Data: data}, nil
}

// Len returns the number of values the shape of the array holds.
func (A Array) Len() int { return size(A.Shape) }

func size(shape []int) int {
	n := 1
	for _, v := range shape {
		n *= v
	}
	return n
}

// MaxValues is the largest number of values an array read from a file can hold.
const MaxValues = 1 << 30

// count returns the number of values of shape, and false if a dimension is negative
// or the count exceeds MaxValues.
func count(shape []int) (int, bool) {
	n := 1
	for _, v := range shape {
		if v < 0 {
			return 0, false
		}
		if v == 0 {
			return 0, true
		}
		if n > MaxValues/v {
			return 0, false
		}
		n *= v
	}
	return n, true
}

// Compression names the codec used for a file.
type Compression int

const (
	Zstd Compression = iota
	Gzip
	Flate
	LZW
	Raw
)

func (C Compression) String() string {
	return [...]string{"zstd", "gzip", "flate", "lzw", "raw"}[C]
}

// CompressionFor returns the codec that corresponds to the suffix of name.
func CompressionFor(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return Gzip
	case strings.HasSuffix(name, ".flate"):
		return Flate
	case strings.HasSuffix(name, ".lzw"):
		return LZW
	case strings.HasSuffix(name, ".raw"):
		return Raw
	default:
		return Zstd
	}
}

// Known reports whether name ends in one of the suffixes the package recognizes explicitly.
func Known(name string) bool {
	for _, s := range []string{".zst", ".gz", ".flate", ".lzw", ".raw"} {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Writer writes an archive with a fixed number of arrays.
type Writer struct {
	f         *os.File
	c         io.WriteCloser
	h         *bufio.Writer
	filename  string
	n         int
	written   int
	writeable bool
}

// NewWriter creates the file name and writes the metadata and the array count.
// Metadata keys are written in lexicographic order. Keys can't contain '=' and
// neither keys nor values can contain newlines.
func NewWriter(name string, narrays int, meta map[string]string) (*Writer, error) {
	keys := make([]string, 0, len(meta))
	for k, v := range meta {
		if k == "" || strings.ContainsAny(k, "=\n") || strings.Contains(v, "\n") || strings.HasPrefix(k, "**") {
			return nil, Error{fmt.Sprintf("invalid metadata entry %q", k), name, []string{"NewWriter"}, true}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	f, err := os.Create(name)
	if err != nil {
		return nil, Error{err.Error(), name, []string{"NewWriter"}, true}
	}
	W := &Writer{f: f, filename: name, n: narrays}
	switch CompressionFor(name) {
	case Gzip:
		W.c, err = gzip.NewWriterLevel(f, gzip.BestCompression)
	case Flate:
		W.c, err = flate.NewWriter(f, flate.BestCompression)
	case LZW:
		W.c = lzw.NewWriter(f, lzw.LSB, 8)
	case Raw:
		W.c = nopWriteCloser{f}
	default:
		W.c, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	}
	if err != nil {
		f.Close()
		return nil, Error{err.Error(), name, []string{"NewWriter"}, true}
	}
	W.h = bufio.NewWriter(W.c)
	for _, k := range keys {
		fmt.Fprintf(W.h, "%s=%s\n", k, meta[k])
	}
	if _, err = fmt.Fprintf(W.h, "** %d\n", narrays); err != nil {
		W.abort()
		return nil, Error{err.Error(), name, []string{"NewWriter"}, true}
	}
	W.writeable = true
	return W, nil
}

func (W *Writer) abort() {
	W.c.Close()
	W.f.Close()
	W.f = nil
	W.writeable = false
}

// Writeable reports whether more arrays can be written.
func (W *Writer) Writeable() bool { return W.writeable && W.written < W.n }

// WNext writes the next array.
func (W *Writer) WNext(A Array) error {
	if !W.Writeable() {
		return Error{"writer is closed or full", W.filename, []string{"WNext"}, true}
	}
	if A.Name == "" || strings.ContainsAny(A.Name, " \n") {
		return Error{fmt.Sprintf("invalid array name %q", A.Name), W.filename, []string{"WNext"}, true}
	}
	if A.Len() != len(A.Data) {
		return Error{fmt.Sprintf("array %s: shape %v does not hold %d values", A.Name, A.Shape, len(A.Data)), W.filename, []string{"WNext"}, true}
	}
	dims := make([]string, len(A.Shape))
	for i, v := range A.Shape {
		if v < 0 {
			return Error{fmt.Sprintf("array %s: negative dimension in %v", A.Name, A.Shape), W.filename, []string{"WNext"}, true}
		}
		dims[i] = strconv.Itoa(v)
	}
	if _, err := fmt.Fprintf(W.h, "# %s %d %s\n", A.Name, len(A.Shape), strings.Join(dims, " ")); err != nil {
		W.abort()
		return Error{err.Error(), W.filename, []string{"WNext"}, true}
	}
	if len(A.Data) == 0 {
		W.written++
		return nil
	}
	if err := binary.Write(W.h, binary.LittleEndian, A.Data); err != nil {
		W.abort()
		return Error{err.Error(), W.filename, []string{"WNext"}, true}
	}
	W.written++
	return nil
}

// Close flushes and closes the file. It fails if fewer arrays than announced were written.
func (W *Writer) Close() error {
	if W.f == nil {
		return nil
	}
	var errs []string
	if W.written != W.n {
		errs = append(errs, fmt.Sprintf("%d arrays announced, %d written", W.n, W.written))
	}
	if err := W.h.Flush(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := W.c.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := W.f.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	W.f = nil
	W.writeable = false
	if len(errs) > 0 {
		return Error{strings.Join(errs, "; "), W.filename, []string{"Close"}, true}
	}
	return nil
}

// zstd decoders have a Close method with no return value, so they
// need a wrapper to work as ReadClosers.
type zstdReadCloser struct {
	d *zstd.Decoder
}

func (z zstdReadCloser) Read(p []byte) (int, error) { return z.d.Read(p) }
func (z zstdReadCloser) Close() error               { z.d.Close(); return nil }

// Reader reads an archive one array at a time.
type Reader struct {
	f        *os.File
	c        io.ReadCloser
	h        *bufio.Reader
	filename string
	n        int
	read     int
	readable bool
}

// NewReader opens name and reads its metadata and array count.
func NewReader(name string) (*Reader, map[string]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, Error{err.Error(), name, []string{"NewReader"}, true}
	}
	R := &Reader{f: f, filename: name}
	switch CompressionFor(name) {
	case Gzip:
		R.c, err = gzip.NewReader(f)
	case Flate:
		R.c = flate.NewReader(f)
	case LZW:
		R.c = lzw.NewReader(f, lzw.LSB, 8)
	case Raw:
		R.c = io.NopCloser(f)
	default:
		var d *zstd.Decoder
		d, err = zstd.NewReader(f)
		if err == nil {
			R.c = zstdReadCloser{d}
		}
	}
	if err != nil {
		f.Close()
		return nil, nil, Error{err.Error(), name, []string{"NewReader"}, true}
	}
	R.h = bufio.NewReader(R.c)
	meta := make(map[string]string)
	for {
		s, err := R.h.ReadString('\n')
		if err != nil {
			R.Close()
			return nil, nil, Error{"can't read the archive header: " + err.Error(), name, []string{"NewReader"}, true}
		}
		s = strings.TrimSuffix(s, "\n")
		if strings.HasPrefix(s, "**") {
			R.n, err = strconv.Atoi(strings.TrimSpace(s[2:]))
			if err != nil || R.n < 0 {
				R.Close()
				return nil, nil, Error{fmt.Sprintf("malformed array count line %q", s), name, []string{"NewReader"}, true}
			}
			break
		}
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			R.Close()
			return nil, nil, Error{fmt.Sprintf("malformed metadata line %q", s), name, []string{"NewReader"}, true}
		}
		meta[k] = v
	}
	R.readable = true
	return R, meta, nil
}

// Len returns the number of arrays in the archive.
func (R *Reader) Len() int { return R.n }

// Readable reports whether the reader is still open.
func (R *Reader) Readable() bool { return R.readable }

// Next reads the next array. It returns io.EOF after the last one, and closes the reader.
func (R *Reader) Next() (Array, error) {
	if !R.readable {
		return Array{}, Error{"reader is closed", R.filename, []string{"Next"}, true}
	}
	if R.read == R.n {
		R.Close()
		return Array{}, io.EOF
	}
	s, err := R.h.ReadString('\n')
	if err != nil {
		return Array{}, Error{fmt.Sprintf("can't read the shape of array %d: %s", R.read, err.Error()), R.filename, []string{"Next"}, true}
	}
	f := strings.Fields(s)
	if len(f) < 3 || f[0] != "#" {
		return Array{}, Error{fmt.Sprintf("malformed shape line %q", s), R.filename, []string{"Next"}, true}
	}
	rank, err := strconv.Atoi(f[2])
	if err != nil || rank != len(f)-3 {
		return Array{}, Error{fmt.Sprintf("malformed shape line %q", s), R.filename, []string{"Next"}, true}
	}
	A := Array{Name: f[1], Shape: make([]int, rank)}
	for i, v := range f[3:] {
		A.Shape[i], err = strconv.Atoi(v)
		if err != nil || A.Shape[i] < 0 {
			return Array{}, Error{fmt.Sprintf("malformed shape line %q", s), R.filename, []string{"Next"}, true}
		}
	}
	n, ok := count(A.Shape)
	if !ok {
		return Array{}, Error{fmt.Sprintf("malformed shape line %q", s), R.filename, []string{"Next"}, true}
	}
	A.Data = make([]float64, n)
	if len(A.Data) == 0 {
		R.read++
		return A, nil
	}
	if err = binary.Read(R.h, binary.LittleEndian, A.Data); err != nil {
		return Array{}, Error{fmt.Sprintf("can't read array %s: %s", A.Name, err.Error()), R.filename, []string{"Next"}, true}
	}
	R.read++
	return A, nil
}

// Close closes the reader. It is safe to call it more than once.
func (R *Reader) Close() {
	if R.f == nil {
		return
	}
	R.c.Close()
	R.f.Close()
	R.f = nil
	R.readable = false
}

// Write writes meta and arrays to the file name.
func Write(name string, meta map[string]string, arrays []Array) error {
	W, err := NewWriter(name, len(arrays), meta)
	if err != nil {
		return errDecorate(err, "Write")
	}
	for _, a := range arrays {
		if err := W.WNext(a); err != nil {
			W.Close()
			return errDecorate(err, "Write")
		}
	}
	if err := W.Close(); err != nil {
		return errDecorate(err, "Write")
	}
	return nil
}

// Read reads the whole archive name.
func Read(name string) (map[string]string, []Array, error) {
	R, meta, err := NewReader(name)
	if err != nil {
		return nil, nil, errDecorate(err, "Read")
	}
	defer R.Close()
	arrays := make([]Array, 0, min(R.Len(), 64))
	for {
		a, err := R.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errDecorate(err, "Read")
		}
		arrays = append(arrays, a)
	}
	return meta, arrays, nil
}

// Find returns the first array called name, and whether it was found.
func Find(arrays []Array, name string) (Array, bool) {
	for _, a := range arrays {
		if a.Name == name {
			return a, true
		}
	}
	return Array{}, false
}

// Error is the error type of the package.
type Error struct {
	message  string
	filename string //the file with problems, or empty string if none.
	deco     []string
	critical bool
}

func (err Error) Error() string {
	if err.filename == "" {
		return "protfun/archive: " + err.message
	}
	return fmt.Sprintf("protfun/archive: file %s: %s", err.filename, err.message)
}

// Decorate adds dec to the error's call stack and returns the stack.
func (err Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

func (err Error) FileName() string { return err.filename }
func (err Error) Critical() bool   { return err.critical }

func errDecorate(err error, caller string) error {
	e, ok := err.(Error)
	if !ok {
		return err
	}
	e.deco = append(e.deco[:len(e.deco):len(e.deco)], caller)
	return e
}
