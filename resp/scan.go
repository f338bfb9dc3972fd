// Copyright © 2016 Luit van Drongelen <luit@luit.eu>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package resp implements the RESP line protocol: requests as arrays of
// bulk strings, replies as the tagged sum {String, Error, Integer, Bulk,
// Array}. It owns byte-level framing only; command semantics live in the
// cluster package.
package resp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	errInvalid    = errors.New("resp: invalid RESP line")
	errIncomplete = errors.New("resp: incomplete RESP line")
)

type itemType int

const (
	itemInline itemType = iota
	itemString
	itemError
	itemInteger
	itemBulk
	itemArray
)

// item is a single decoded RESP line: a scalar value, or the header of an
// array (count only — elements are read as further items by the caller).
type item struct {
	typ itemType
	val []byte // value for inline, string, error and bulk
	i   int64  // value for integer and array
}

func (i item) String() string {
	switch i.typ {
	case itemInline:
		return fmt.Sprintf("inline(%q)", string(i.val))
	case itemString:
		return fmt.Sprintf("string(%q)", string(i.val))
	case itemError:
		return fmt.Sprintf("error(%q)", string(i.val))
	case itemInteger:
		return fmt.Sprintf("integer(%d)", i.i)
	case itemBulk:
		if i.val == nil {
			return "bulk(nil)"
		}
		return fmt.Sprintf("bulk(%q)", string(i.val))
	case itemArray:
		return fmt.Sprintf("array(%d)", i.i)
	}
	if i.val == nil {
		return fmt.Sprintf("unknown(nil, %d)", i.i)
	}
	return fmt.Sprintf("unknown(%q, %d)", string(i.val), i.i)
}

// bytes returns the RESP wire encoding of i. The returned slice is owned by
// the caller.
func (i item) bytes() (b []byte) {
	switch i.typ {
	case itemInline:
		b = make([]byte, len(i.val)+2)
		copy(b, i.val)
	case itemString:
		b = make([]byte, 1+len(i.val)+2)
		b[0] = '+'
		copy(b[1:], i.val)
	case itemError:
		b = make([]byte, 1+len(i.val)+2)
		b[0] = '-'
		copy(b[1:], i.val)
	case itemInteger:
		b = make([]byte, 1+20+2)
		b[0] = ':'
		l := itoa(b[1:], i.i)
		b = b[:1+l+2]
	case itemBulk:
		if i.val == nil {
			b = make([]byte, 1+2+2)
			b[0], b[1], b[2] = '$', '-', '1'
			break
		}
		b = make([]byte, 1+20+2+len(i.val)+2)
		b[0] = '$'
		l := itoa(b[1:], int64(len(i.val)))
		b[1+l], b[1+l+1] = '\r', '\n'
		b = b[:1+l+2+len(i.val)+2]
		copy(b[1+l+2:], i.val)
	case itemArray:
		b = make([]byte, 1+20+2)
		b[0] = '*'
		l := itoa(b[1:], i.i)
		b = b[:1+l+2]
	default:
		return nil
	}
	b[len(b)-2], b[len(b)-1] = '\r', '\n'
	return
}

// split is a bufio.SplitFunc that splits and validates data from an
// io.Reader reading RESP lines. For bulk strings it scans ahead for the
// full payload so a single token always represents one complete RESP
// value (scalar, or array-header-with-count). bufio.Scanner retains any
// unconsumed bytes across calls, which is what stands in for the
// per-connection carry-over buffer.
func split(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		if atEOF {
			return 0, nil, errIncomplete
		}
		return 0, nil, nil
	}
	j := i
	if j > 0 && data[j-1] == '\r' {
		j--
	}
	switch data[0] {
	case ':', '$', '*':
	default:
		return i + 1, data[0:j], nil
	}
	var n int64
	n, err = atoi(data[1:j])
	if err != nil {
		return 0, nil, errInvalid
	}
	if data[0] != '$' {
		return i + 1, data[0:j], nil
	}
	m := int(n)
	switch {
	case m < -1:
		return 0, nil, errInvalid
	case m == -1:
		return i + 1, data[0 : i+1], nil
	case len(data) < i+1+m+1, len(data) < i+1+m+2 && data[i+1+m] == '\r':
		if atEOF {
			return 0, nil, errIncomplete
		}
		return 0, nil, nil
	case data[i+1+m] == '\n':
		return i + 1 + m + 1, data[0 : i+1+m], nil
	case data[i+1+m] == '\r' && data[i+1+m+1] == '\n':
		return i + 1 + m + 2, data[0 : i+1+m], nil
	default:
		return 0, nil, errInvalid
	}
}

type lineReader struct {
	s *bufio.Scanner
}

func newLineReader(r io.Reader) *lineReader {
	rr := &lineReader{s: bufio.NewScanner(r)}
	rr.s.Buffer(make([]byte, 0, 64*1024), 512*1024*1024)
	rr.s.Split(split)
	return rr
}

func (r *lineReader) read() (i item, err error) {
	if !r.s.Scan() {
		if r.s.Err() == nil {
			return i, io.EOF
		}
		return i, r.s.Err()
	}
	b := r.s.Bytes()
	if len(b) < 1 {
		return i, errors.New("resp: empty scan")
	}
	switch b[0] {
	case '+':
		i.typ = itemString
	case '-':
		i.typ = itemError
	case ':':
		i.typ = itemInteger
	case '$':
		i.typ = itemBulk
	case '*':
		i.typ = itemArray
	default:
		i.typ = itemInline
	}
	if i.typ != itemInline {
		b = b[1:]
	}
	end := len(b)
	switch i.typ {
	case itemString, itemError, itemInline:
		i.val = make([]byte, end)
		copy(i.val, b)
		return
	case itemBulk:
		end = bytes.IndexByte(b, '\n')
		if end < 0 {
			return i, errInvalid
		}
		if b[end-1] == '\r' {
			end--
		}
	}
	i.i, err = atoi(b[:end])
	if err != nil {
		return
	}
	if i.typ == itemBulk {
		if i.i == -1 {
			return
		}
		start := bytes.IndexByte(b, '\n') + 1
		if int64(len(b)) < int64(start)+i.i {
			return i, errIncomplete
		}
		i.val = make([]byte, i.i)
		copy(i.val, b[start:start+int(i.i)])
	}
	return
}
