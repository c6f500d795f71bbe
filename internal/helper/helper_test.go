package helper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsQueueOpen(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("timezone database not available")
	}
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, loc) }

	tests := []struct {
		name          string
		now           time.Time
		open, closeAt string
		want          bool
	}{
		{"before opening", at(6, 59), "07:00", "17:00", false},
		{"at opening", at(7, 0), "07:00", "17:00", true},
		{"midday", at(12, 30), "07:00:00", "17:00:00", true},
		{"at closing", at(17, 0), "07:00", "17:00", false},
		{"overnight evening", at(23, 0), "22:00", "02:00", true},
		{"overnight early morning", at(1, 0), "22:00", "02:00", true},
		{"overnight closed", at(12, 0), "22:00", "02:00", false},
		{"bad value", at(12, 0), "seven", "17:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQueueOpen(tt.now, tt.open, tt.closeAt, "America/Sao_Paulo"))
		})
	}

	assert.False(t, IsQueueOpen(at(12, 0), "07:00", "17:00", "Nowhere/City"))
}

func TestNumberWords(t *testing.T) {
	tests := map[int][]string{
		0:     {"zero"},
		1:     {"um"},
		10:    {"dez"},
		15:    {"quinze"},
		21:    {"vinte", "e", "um"},
		40:    {"quarenta"},
		100:   {"cem"},
		101:   {"cento", "e", "um"},
		234:   {"duzentos", "e", "trinta", "e", "quatro"},
		1000:  {"mil"},
		1005:  {"mil", "e", "cinco"},
		1200:  {"mil", "e", "duzentos"},
		2345:  {"dois", "mil", "trezentos", "e", "quarenta", "e", "cinco"},
		10203: {"um", "zero", "dois", "zero", "tres"},
	}
	for n, want := range tests {
		assert.Equal(t, want, NumberWords(n), "%d", n)
	}
	assert.Nil(t, NumberWords(-1))
}

func TestAnnouncementPaths(t *testing.T) {
	assert.Equal(t, []string{
		"audio/chime.mp3",
		"audio/senha.mp3",
		"audio/n.mp3",
		"audio/vinte.mp3",
		"audio/e.mp3",
		"audio/um.mp3",
		"audio/dirija_se.mp3",
	}, AnnouncementPaths("N-021"))
}
