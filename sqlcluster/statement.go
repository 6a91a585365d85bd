// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package sqlcluster

import (
	"github.com/tochemey/hadb/internal/codec"
)

const (
	opBegin    = "begin"
	opExec     = "exec"
	opCommit   = "commit"
	opRollback = "rollback"
)

// statement is the durability payload of a write
type statement struct {
	Op    string `msgpack:"op"`
	Query string `msgpack:"query,omitempty"`
	Args  []any  `msgpack:"args,omitempty"`
}

// encode returns the payload of the statement, or nil when its arguments
// cannot be encoded. A record without payload is not replayed.
func (s statement) encode() []byte {
	payload, err := codec.Encode(s)
	if err != nil {
		return nil
	}
	return payload
}

func decodeStatement(payload []byte) (statement, error) {
	var stmt statement
	err := codec.Decode(payload, &stmt)
	return stmt, err
}
