// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/willf/bitset"
)

func TestBitfieldRoundTrip(t *testing.T) {
	tests := []struct {
		numPieces int
		set       []int
	}{
		{3, []int{0, 2}},
		{8, []int{0, 7}},
		{9, []int{8}},
		{17, []int{0, 1, 2, 16}},
		{1, nil},
	}
	for _, test := range tests {
		b := bitset.New(uint(test.numPieces))
		for _, i := range test.set {
			b.Set(uint(i))
		}
		encoded := EncodeBitfield(b, test.numPieces)
		decoded := DecodeBitfield(encoded, test.numPieces)
		for i := 0; i < test.numPieces; i++ {
			require.Equal(t, b.Test(uint(i)), decoded.Test(uint(i)), "bit %d", i)
		}
	}
}

func TestBitfieldIgnoresPaddingBits(t *testing.T) {
	// 3 pieces -> 1 byte, 5 padding bits. Set a padding bit and confirm it's
	// ignored on decode.
	raw := []byte{0b00000111}
	decoded := DecodeBitfield(raw, 3)
	require.False(t, decoded.Test(0))
	require.False(t, decoded.Test(1))
	require.False(t, decoded.Test(2))
}

func TestWriteReadMessageRoundTrip(t *testing.T) {
	msgs := []Message{
		NewChoke(),
		NewUnchoke(),
		NewInterested(),
		NewHave(5),
		NewRequest(2, 4),
		NewPiece(1, 0, []byte("AAAA")),
		KeepAliveMessage(),
	}
	for _, m := range msgs {
		var buf bytes.Buffer
		require.NoError(t, WriteMessage(&buf, m))
		got, err := ReadMessage(&buf)
		require.NoError(t, err)
		require.Equal(t, m.IsKeepAlive, got.IsKeepAlive)
		if !m.IsKeepAlive {
			require.Equal(t, m.ID, got.ID)
			require.Equal(t, m.Index, got.Index)
			require.Equal(t, m.Block, got.Block)
		}
	}
}
