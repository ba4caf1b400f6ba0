package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampWords(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultWords},
		{-5, MinWords},
		{50, MinWords},
		{200, 200},
		{1500, 1500},
		{4000, 4000},
		{9000, MaxWords},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampWords(tt.in), "ClampWords(%d)", tt.in)
	}
}
