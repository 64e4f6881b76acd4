package nametable

import (
	"fmt"
	"strings"
)

// Key identifies a logical setting of the <program> section.
type Key string

const (
	KeyRefDom     Key = "refdom"
	KeyOnOff      Key = "onoff"
	KeyBwc        Key = "bwc"
	KeyCTime      Key = "ctime"
	KeyCTimeDown  Key = "ctimedown"
	KeyCTimeUp    Key = "ctimeup"
	KeySTimeDown  Key = "stimedown"
	KeySTimeUp    Key = "stimeup"
	KeyRandA      Key = "randa"
	KeyRandB      Key = "randb"
	KeyRandC      Key = "randc"
	KeyRandV      Key = "randv"
	KeyRandNeo    Key = "randneo"
	KeyRandPower  Key = "randpower"
	KeyRandN2s    Key = "randn2s"
	KeyRandAdnc   Key = "randadnc"
	KeyRandCriteo Key = "randcriteo"
	KeyMUserAgent Key = "museragent"
	KeyKeyCycleB  Key = "keycycleb"
	KeySubCycleB  Key = "subcycleb"
	KeyNeoBack3   Key = "neoback3"
)

// AllKeys lists every key the decoder resolves, in document order.
var AllKeys = []Key{
	KeyRefDom,
	KeyOnOff,
	KeyBwc,
	KeyCTime,
	KeyCTimeDown,
	KeyCTimeUp,
	KeySTimeDown,
	KeySTimeUp,
	KeyRandA,
	KeyRandB,
	KeyRandC,
	KeyRandV,
	KeyRandNeo,
	KeyRandPower,
	KeyRandN2s,
	KeyRandAdnc,
	KeyRandCriteo,
	KeyMUserAgent,
	KeyKeyCycleB,
	KeySubCycleB,
	KeyNeoBack3,
}

// WeightKeys are the numeric weighting knobs kept as raw strings.
var WeightKeys = []Key{
	KeyRandA,
	KeyRandB,
	KeyRandC,
	KeyRandV,
	KeyRandNeo,
	KeyRandPower,
	KeyRandN2s,
	KeyRandAdnc,
	KeyRandCriteo,
}

// ParseKey converts a string to its Key constant.
func ParseKey(s string) (Key, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, k := range AllKeys {
		if string(k) == lower {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid name table key: '%s'", s)
}
