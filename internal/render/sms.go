package render

import (
	"errors"
	"fmt"
)

// ErrMessageTooLong is returned when a message exceeds the largest
// multi-part SMS.
var ErrMessageTooLong = errors.New("message too long")

// Length is the GSM 03.38 length of a message and the number of SMS parts it
// is billed as.
type Length struct {
	Length int `json:"length"`
	Parts  int `json:"parts"`
}

const basicCharacters = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ_" +
	"abcdefghijklmnopqrstuvwxyz¡£¤¥§¿ÄÅÆÇÉÑÖØÜßàäåæèéìñòöøùüΓΔΘΛΞΠΣΦΨΩç®"

// extension characters take two septets; "\n" is counted as two because the
// gateway sends it as CR LF
const extensionCharacters = "\n[\\]^{|}~€"

var (
	basicSet     = runeSet(basicCharacters)
	extensionSet = runeSet(extensionCharacters)
)

// multipartLengths maps part count to the maximum length it can carry.
var multipartLengths = []struct {
	parts int
	max   int
}{
	{1, 160}, {2, 306}, {3, 459}, {4, 612}, {5, 765}, {6, 918}, {7, 1071}, {8, 1224}, {9, 1377},
}

// SMSLength measures msg. Characters outside the GSM alphabet are stripped
// by the gateway and are not counted.
func SMSLength(msg string) (Length, error) {
	length := 0
	for _, c := range msg {
		if _, ok := basicSet[c]; ok {
			length++
		} else if _, ok := extensionSet[c]; ok {
			length += 2
		}
	}

	for _, m := range multipartLengths {
		if length <= m.max {
			return Length{Length: length, Parts: m.parts}, nil
		}
	}

	limit := multipartLengths[len(multipartLengths)-1].max
	return Length{}, fmt.Errorf("%w: length %d exceeds maximum multi-part SMS length %d", ErrMessageTooLong, length, limit)
}

func runeSet(s string) map[rune]struct{} {
	out := make(map[rune]struct{}, len(s))
	for _, r := range s {
		out[r] = struct{}{}
	}
	return out
}
