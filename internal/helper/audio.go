package helper

import (
	"fmt"
	"strconv"
	"strings"
)

/*
|--------------------------------------------------------------------------
| Announcement audio
|--------------------------------------------------------------------------
|
| The panel plays a sequence of short recordings: chime, "senha",
| the ticket letters, the number in words, then the room.
*/

// AnnouncementPaths returns the audio files the panel plays for a call.
func AnnouncementPaths(ticket string) []string {
	paths := []string{
		"audio/chime.mp3",
		"audio/senha.mp3",
	}
	paths = append(paths, ticketPaths(ticket)...)
	paths = append(paths, "audio/dirija_se.mp3")
	return paths
}

func ticketPaths(code string) []string {
	var letters, digits strings.Builder
	for _, c := range code {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
			letters.WriteRune(c)
		case c >= '0' && c <= '9':
			digits.WriteRune(c)
		}
	}

	var paths []string
	for _, c := range strings.ToLower(letters.String()) {
		paths = append(paths, fmt.Sprintf("audio/%c.mp3", c))
	}
	if digits.Len() > 0 {
		if n, err := strconv.Atoi(digits.String()); err == nil {
			for _, w := range NumberWords(n) {
				paths = append(paths, "audio/"+w+".mp3")
			}
		}
	}
	return paths
}

var (
	units = []string{"", "um", "dois", "tres", "quatro", "cinco", "seis", "sete", "oito", "nove"}
	teens = []string{"dez", "onze", "doze", "treze", "quatorze", "quinze", "dezesseis", "dezessete", "dezoito", "dezenove"}
	tens  = []string{"", "", "vinte", "trinta", "quarenta", "cinquenta", "sessenta", "setenta", "oitenta", "noventa"}
	hunds = []string{"", "cento", "duzentos", "trezentos", "quatrocentos", "quinhentos", "seiscentos", "setecentos", "oitocentos", "novecentos"}
)

// NumberWords spells 0..9999 in Portuguese, one word per recording ("e"
// included). Larger numbers are read digit by digit.
func NumberWords(n int) []string {
	switch {
	case n < 0:
		return nil
	case n == 0:
		return []string{"zero"}
	case n > 9999:
		var out []string
		for _, c := range strconv.Itoa(n) {
			d := int(c - '0')
			if d == 0 {
				out = append(out, "zero")
				continue
			}
			out = append(out, units[d])
		}
		return out
	}

	var out []string
	if n >= 1000 {
		th := n / 1000
		if th == 1 {
			out = append(out, "mil")
		} else {
			out = append(out, units[th], "mil")
		}
		n %= 1000
		if n == 0 {
			return out
		}
		if n < 100 || n%100 == 0 {
			out = append(out, "e")
		}
	}
	return append(out, belowThousand(n)...)
}

func belowThousand(n int) []string {
	if n == 100 {
		return []string{"cem"}
	}

	var out []string
	if n >= 100 {
		out = append(out, hunds[n/100])
		n %= 100
		if n == 0 {
			return out
		}
		out = append(out, "e")
	}

	switch {
	case n >= 20:
		out = append(out, tens[n/10])
		if n%10 > 0 {
			out = append(out, "e", units[n%10])
		}
	case n >= 10:
		out = append(out, teens[n-10])
	case n > 0:
		out = append(out, units[n])
	}
	return out
}
