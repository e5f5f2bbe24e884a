/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package protocol

import "strings"

var byName map[string]NetworkProtocol

func init() {
	byName = make(map[string]NetworkProtocol, len(names))
	for p, s := range names {
		byName[s] = p
	}
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "'")
	s = strings.Trim(s, "\"")
	s = strings.Trim(s, "`")
	return s
}

// Parse resolves a protocol name, case-insensitively and tolerant of
// surrounding whitespace and quoting, returning NetworkEmpty when the
// name is not recognized.
func Parse(s string) NetworkProtocol {
	if p, ok := byName[strings.ToLower(clean(s))]; ok {
		return p
	}
	return NetworkEmpty
}

// ParseBytes is Parse for a raw byte slice, as produced by config decoders.
func ParseBytes(b []byte) NetworkProtocol {
	return Parse(string(b))
}
